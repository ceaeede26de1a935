package main

import (
	"os"

	"github.com/registrylabs/registry-cli/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
