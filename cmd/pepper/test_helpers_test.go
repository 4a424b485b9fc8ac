package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pepper/internal/config"
	"pepper/internal/daemonrun"
	"pepper/internal/devices"
	"pepper/internal/ipc"
	"pepper/internal/testsupport"
)

const testDriveID = "CLI-0001"

type cliTestEnv struct {
	cfg        *config.Config
	source     *testsupport.FakeSource
	socketPath string
	configPath string
	mountDir   string
}

// setupCLITestEnv runs a full daemon in-process over a fake device source
// holding one usercode drive whose script prints a line and sleeps.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t,
		testsupport.WithPythonCommand("/bin/sh", "-c", "echo hello-from-usercode; sleep 30"),
		testsupport.WithGracePeriod(1),
	)
	configPath := filepath.Join(homeDir, ".config", "pepper", "config.toml")
	writeTestConfig(t, configPath, cfg)

	mountDir := testsupport.NewMountDir(t, "usercode", "main.py")
	source := testsupport.NewFakeSource()
	source.AddVolume(devices.Volume{ID: testDriveID, Object: "/dev/sdb1", MountPoints: []string{mountDir}})

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{Version: version, Source: source, Ready: ready})
	}()
	select {
	case <-ready:
	case err := <-done:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	return &cliTestEnv{
		cfg:        cfg,
		source:     source,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		mountDir:   mountDir,
	}
}

// waitForDaemonStatus polls the daemon over IPC.
func (e *cliTestEnv) waitForDaemonStatus(t *testing.T, want string) {
	t.Helper()
	client, err := ipc.Dial(e.socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	waitFor(t, 5*time.Second, func() bool {
		resp, err := client.Status()
		return err == nil && resp.Status == want
	})
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
