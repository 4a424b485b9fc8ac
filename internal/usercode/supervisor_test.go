package usercode_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pepper/internal/logging"
	"pepper/internal/usercode"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) WriteLine(_ string, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type statusLog struct {
	mu      sync.Mutex
	updates []usercode.Status
	changed chan struct{}
}

func newStatusLog() *statusLog {
	return &statusLog{changed: make(chan struct{}, 64)}
}

func (l *statusLog) record(status usercode.Status) {
	l.mu.Lock()
	l.updates = append(l.updates, status)
	l.mu.Unlock()
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *statusLog) snapshot() []usercode.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]usercode.Status(nil), l.updates...)
}

func (l *statusLog) waitFor(t *testing.T, want usercode.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		for _, status := range l.snapshot() {
			if status == want {
				return
			}
		}
		select {
		case <-l.changed:
		case <-deadline:
			t.Fatalf("timed out waiting for %s, saw %v", want, l.snapshot())
		}
	}
}

func newShellSupervisor(t *testing.T, script string, grace time.Duration) (*usercode.Supervisor, *statusLog, *recordingSink, string) {
	t.Helper()
	dir := t.TempDir()
	statuses := newStatusLog()
	sink := &recordingSink{}
	sup := usercode.NewSupervisor(usercode.Options{
		Driver:      usercode.Driver{Name: "ShellDriver", Entrypoint: "main.sh", Command: []string{"/bin/sh", "-c", script}},
		WorkDir:     dir,
		GracePeriod: grace,
		Sink:        sink,
		Logger:      logging.NewNop(),
		OnStatus:    statuses.record,
	})
	return sup, statuses, sink, dir
}

func TestSupervisorNaturalExitFinished(t *testing.T) {
	sup, statuses, sink, dir := newShellSupervisor(t, "echo hello; echo oops 1>&2; exit 0", time.Second)

	if sup.Status() != usercode.StatusStarting {
		t.Fatalf("expected initial status starting, got %s", sup.Status())
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statuses.waitFor(t, usercode.StatusFinished, 5*time.Second)

	if got := statuses.snapshot(); len(got) != 2 || got[0] != usercode.StatusRunning || got[1] != usercode.StatusFinished {
		t.Fatalf("unexpected transitions: %v", got)
	}
	if !sup.Idle() {
		t.Fatal("expected supervisor idle after exit")
	}
	if sup.Pid() != 0 {
		t.Fatalf("expected no pid when idle, got %d", sup.Pid())
	}
	if sup.ExitCode() != 0 {
		t.Fatalf("expected exit code 0, got %d", sup.ExitCode())
	}

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "=== LOG STARTED ===" || lines[len(lines)-1] != "=== LOG FINISHED ===" {
		t.Fatalf("log file not bracketed by markers: %q", data)
	}
	if !strings.Contains(string(data), "hello\n") || !strings.Contains(string(data), "oops\n") {
		t.Fatalf("expected stdout and stderr in log file: %q", data)
	}

	joined := strings.Join(sink.snapshot(), "\n")
	if !strings.Contains(joined, "hello") || !strings.Contains(joined, "oops") {
		t.Fatalf("expected output forwarded to sink, got %q", joined)
	}
}

func TestSupervisorNonZeroExitCrashed(t *testing.T) {
	sup, statuses, _, _ := newShellSupervisor(t, "exit 3", time.Second)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statuses.waitFor(t, usercode.StatusCrashed, 5*time.Second)

	if sup.Status() != usercode.StatusCrashed {
		t.Fatalf("expected crashed, got %s", sup.Status())
	}
	if sup.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", sup.ExitCode())
	}
}

func TestSupervisorStopTerminatesPolitely(t *testing.T) {
	sup, statuses, _, _ := newShellSupervisor(t, "echo ready; sleep 30", 10*time.Second)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sup.Pid() == 0 {
		t.Fatal("expected pid while running")
	}

	started := time.Now()
	sup.Stop()
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("SIGTERM should end the process group well before the grace period, took %s", elapsed)
	}
	if sup.Status() != usercode.StatusKilled {
		t.Fatalf("expected killed, got %s", sup.Status())
	}
	if !sup.Idle() {
		t.Fatal("expected idle after stop")
	}
	if got := statuses.snapshot(); got[len(got)-1] != usercode.StatusKilled {
		t.Fatalf("expected last transition killed, got %v", got)
	}
}

func TestSupervisorStopEscalatesToKill(t *testing.T) {
	sup, _, _, _ := newShellSupervisor(t, "trap '' TERM; while true; do sleep 1; done", 200*time.Millisecond)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return after SIGKILL")
	}
	if sup.Status() != usercode.StatusKilled {
		t.Fatalf("expected killed, got %s", sup.Status())
	}
}

func TestSupervisorRejectsSecondStart(t *testing.T) {
	sup, _, _, _ := newShellSupervisor(t, "sleep 30", time.Second)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { sup.Stop() })

	pid := sup.Pid()
	if err := sup.Start(); !errors.Is(err, usercode.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if sup.Pid() != pid {
		t.Fatal("second start must not replace the running process")
	}
}

func TestSupervisorRestartAfterExit(t *testing.T) {
	sup, statuses, _, _ := newShellSupervisor(t, "exit 0", time.Second)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statuses.waitFor(t, usercode.StatusFinished, 5*time.Second)

	if err := sup.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(statuses.snapshot()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a second run, saw %v", statuses.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSupervisorStopWhenIdleIsNoop(t *testing.T) {
	sup, statuses, _, _ := newShellSupervisor(t, "exit 0", time.Second)
	if sup.Stop() {
		t.Fatal("Stop on an idle supervisor must report no kill")
	}
	if sup.Status() != usercode.StatusStarting {
		t.Fatalf("expected status unchanged, got %s", sup.Status())
	}
	if len(statuses.snapshot()) != 0 {
		t.Fatalf("expected no transitions, got %v", statuses.snapshot())
	}
}

func TestSupervisorStopAfterExitReportsNoKill(t *testing.T) {
	sup, statuses, _, _ := newShellSupervisor(t, "exit 0", time.Second)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statuses.waitFor(t, usercode.StatusFinished, 5*time.Second)
	if sup.Stop() {
		t.Fatal("Stop after a natural exit must report no kill")
	}
	if sup.Status() != usercode.StatusFinished {
		t.Fatalf("expected finished to stick, got %s", sup.Status())
	}
}

func TestSupervisorExitRacingStopReportsOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		sup, statuses, _, _ := newShellSupervisor(t, "exit 0", time.Second)
		if err := sup.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		killed := sup.Stop()

		// Let a late reap deliver anything it still would.
		time.Sleep(50 * time.Millisecond)
		var terminal []usercode.Status
		for _, st := range statuses.snapshot() {
			if st == usercode.StatusFinished || st == usercode.StatusKilled || st == usercode.StatusCrashed {
				terminal = append(terminal, st)
			}
		}
		if len(terminal) != 1 {
			t.Fatalf("run %d: expected one terminal status, got %v", i, statuses.snapshot())
		}
		want := usercode.StatusFinished
		if killed {
			want = usercode.StatusKilled
		}
		if terminal[0] != want || sup.Status() != want {
			t.Fatalf("run %d: Stop reported killed=%v but terminal status is %s", i, killed, terminal[0])
		}
	}
}

func TestSupervisorSpawnFailureCrashes(t *testing.T) {
	statuses := newStatusLog()
	sup := usercode.NewSupervisor(usercode.Options{
		Driver:   usercode.Driver{Name: "Missing", Command: []string{filepath.Join(t.TempDir(), "no-such-binary")}},
		WorkDir:  t.TempDir(),
		Logger:   logging.NewNop(),
		OnStatus: statuses.record,
	})
	if err := sup.Start(); err == nil {
		t.Fatal("expected spawn error")
	}
	if sup.Status() != usercode.StatusCrashed {
		t.Fatalf("expected crashed, got %s", sup.Status())
	}
	if !sup.Idle() {
		t.Fatal("expected idle after spawn failure")
	}
}

func TestSupervisorContinuesWithoutLogFile(t *testing.T) {
	sup, statuses, sink, dir := newShellSupervisor(t, "echo still-running", time.Second)
	// A directory in place of the log file makes it impossible to open.
	if err := os.Mkdir(filepath.Join(dir, "log.txt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statuses.waitFor(t, usercode.StatusFinished, 5*time.Second)
	if !strings.Contains(strings.Join(sink.snapshot(), "\n"), "still-running") {
		t.Fatalf("expected output to reach the sink, got %v", sink.snapshot())
	}
}
