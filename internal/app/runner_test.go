package app

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("registry attempts list"); got != "attempts list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestSplitCSV(t *testing.T) {
	items := splitCSV("Endorse, mint ,")
	if len(items) != 2 || items[0] != "endorse" || items[1] != "mint" {
		t.Fatalf("unexpected split: %#v", items)
	}
}

func TestRunnerChainsList(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"chains", "list", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	if len(out) == 0 {
		t.Fatalf("expected chain deployments, got empty")
	}
	if _, ok := out[0]["registry"]; !ok {
		t.Fatalf("expected registry address in %v", out[0])
	}
}

func TestRunnerSchema(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"schema", "endorse", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse schema json: %v output=%s", err, stdout.String())
	}
	if out["use"] != "endorse" {
		t.Fatalf("expected endorse schema, got %v", out["use"])
	}
}

func TestRunnerAttemptsListEmptyStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REGISTRY_ATTEMPTS_PATH", filepath.Join(dir, "attempts.db"))
	t.Setenv("REGISTRY_ATTEMPTS_LOCK_PATH", filepath.Join(dir, "attempts.lock"))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"attempts", "list", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	if len(out) != 0 {
		t.Fatalf("expected no attempts, got %v", out)
	}
}

func TestRunnerBlockedCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"chains", "list", "--enable-commands", "attempts list", "--results-only"})
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "BLOCKED" {
		t.Fatalf("expected BLOCKED error, got %v", errBody)
	}
}

func TestRunnerUsageErrorExitCode(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"endorse"})
	if code != 2 {
		t.Fatalf("expected exit 2 for missing --version, got %d stderr=%s", code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "USAGE" {
		t.Fatalf("expected USAGE error, got %v", errBody)
	}
}

func TestRunnerVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"version"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if stdout.Len() == 0 {
		t.Fatalf("expected version output")
	}
}
