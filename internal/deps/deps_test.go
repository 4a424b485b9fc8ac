package deps

import (
	"os"
	"path/filepath"
	"testing"

	"pepper/internal/usercode"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected result for blank command %#v", results[2])
	}
}

func TestCheckBinariesUsesPath(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "pepper-stub"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "Stub", Command: "pepper-stub"}})
	if !results[0].Available {
		t.Fatalf("expected stub on PATH to be found: %#v", results[0])
	}
}

func TestUsercodeRequirements(t *testing.T) {
	reqs := UsercodeRequirements(usercode.Drivers{
		{Name: "PythonUnixProcessDriver", Entrypoint: "main.py", Command: []string{"python3", "-u", "main.py"}},
		{Name: "Empty", Entrypoint: "run.sh"},
	})
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Name != "PythonUnixProcessDriver" || reqs[0].Command != "python3" {
		t.Fatalf("unexpected first requirement %#v", reqs[0])
	}
	if reqs[1].Command != "" {
		t.Fatalf("expected empty command, got %q", reqs[1].Command)
	}
	if CheckBinaries(reqs[1:])[0].Available {
		t.Fatal("driver without a command must not be available")
	}
}
