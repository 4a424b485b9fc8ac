package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.waitForDaemonStatus(t, "code_running")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Pepper Status")
	requireContains(t, out, "[OK] Code Running")
	requireContains(t, out, "fake")
	requireContains(t, out, "1 registered")
	requireContains(t, out, testDriveID+" (PythonUnixProcessDriver)")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	env.waitForDaemonStatus(t, "code_running")

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snap statusSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if snap.Status != "code_running" || snap.Version != "dev" || snap.UsercodeDrive != testDriveID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Drives) != 1 || snap.Drives[0] != testDriveID {
		t.Fatalf("unexpected drives %v", snap.Drives)
	}
}

func TestStatusWatchPrintsChanges(t *testing.T) {
	env := setupCLITestEnv(t)
	env.waitForDaemonStatus(t, "code_running")

	cmd := newRootCommand()
	var stdout syncBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--socket", env.socketPath, "--config", env.configPath, "status", "--watch", "--max-changes", "1"})
	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	waitFor(t, 5*time.Second, func() bool { return strings.Contains(stdout.String(), "Pepper Status") })
	if _, _, err := runCLI(t, []string{"usercode", "kill"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("usercode kill: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("status --watch: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not return after a change")
	}
	requireContains(t, stdout.String(), "[WARN] Code Killed")
}

func TestDrivesAndDriveCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"drives"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("drives: %v", err)
	}
	requireContains(t, out, testDriveID)
	requireContains(t, out, "USERCODE")
	requireContains(t, out, env.mountDir)

	out, _, err = runCLI(t, []string{"drive", testDriveID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	requireContains(t, out, "Type:       USERCODE (index 0)")
	requireContains(t, out, "Mount path: "+env.mountDir)

	if _, _, err := runCLI(t, []string{"drive", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown drive")
	} else {
		requireContains(t, err.Error(), "not registered")
	}
}

func TestDrivesJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"drives", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("drives --json: %v", err)
	}
	var drives []struct {
		ID        string `json:"id"`
		TypeIndex int    `json:"type_index"`
	}
	if err := json.Unmarshal([]byte(out), &drives); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(drives) != 1 || drives[0].ID != testDriveID || drives[0].TypeIndex != 0 {
		t.Fatalf("unexpected drives %+v", drives)
	}
}

func TestTypesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"types"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	usercode := strings.Index(out, "USERCODE")
	metadata := strings.Index(out, "METADATA")
	noAction := strings.Index(out, "NO_ACTION")
	if usercode < 0 || metadata < usercode || noAction < metadata {
		t.Fatalf("types out of order:\n%s", out)
	}
}

func TestUsercodeKillAndStart(t *testing.T) {
	env := setupCLITestEnv(t)
	env.waitForDaemonStatus(t, "code_running")

	out, _, err := runCLI(t, []string{"usercode", "kill"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("usercode kill: %v", err)
	}
	requireContains(t, out, "Usercode killed")
	env.waitForDaemonStatus(t, "code_killed")

	out, _, err = runCLI(t, []string{"usercode", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("usercode status: %v", err)
	}
	requireContains(t, out, testDriveID)
	requireContains(t, out, "PythonUnixProcessDriver")
	requireContains(t, out, "Code Killed")

	if _, _, err := runCLI(t, []string{"usercode", "kill"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error killing with no active process")
	}

	out, _, err = runCLI(t, []string{"usercode", "start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("usercode start: %v", err)
	}
	requireContains(t, out, "Usercode started")
	env.waitForDaemonStatus(t, "code_running")

	if _, _, err := runCLI(t, []string{"usercode", "start"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error starting while running")
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.waitForDaemonStatus(t, "code_running")

	out, _, err := runCLI(t, []string{"logs", "-n", "200"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "pepper daemon started")

	waitFor(t, 5*time.Second, func() bool {
		out, _, err := runCLI(t, []string{"logs", "--usercode", "-n", "0"}, env.socketPath, env.configPath)
		return err == nil && strings.Contains(out, "hello-from-usercode")
	})
}

func TestVersionCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"version"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "pepper dev")
	requireContains(t, out, "daemon dev")
}

func TestVersionWithoutDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	socket := filepath.Join(t.TempDir(), "missing.sock")
	out, _, err := runCLI(t, []string{"version"}, socket, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "daemon: not running")
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	socket := filepath.Join(t.TempDir(), "missing.sock")
	_, _, err := runCLI(t, []string{"status"}, socket, "")
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "pepper daemon")
}

func TestStartWhenAlreadyRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon already running")
}

func TestStopWhenNotRunning(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	socket := filepath.Join(t.TempDir(), "missing.sock")
	out, _, err := runCLI(t, []string{"stop"}, socket, "")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
