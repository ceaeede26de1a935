package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "registry"}
	child := &cobra.Command{Use: "attempts", Short: "attempt cmds"}
	leaf := &cobra.Command{Use: "list", Short: "list attempts"}
	leaf.Flags().Int("limit", 20, "limit results")
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "attempts list")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "registry attempts list" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "limit" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
}

func TestBuildSchemaMissingCommand(t *testing.T) {
	root := &cobra.Command{Use: "registry"}
	if _, err := Build(root, "nope"); err == nil {
		t.Fatal("expected missing command error")
	}
}
