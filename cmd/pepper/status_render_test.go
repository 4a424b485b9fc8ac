package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Code Crashed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Code Crashed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Ready", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestHumanStatus(t *testing.T) {
	cases := map[string]string{
		"ready":         "Ready",
		"code_running":  "Code Running",
		"code_starting": "Code Starting",
		"":              "Unknown",
	}
	for in, want := range cases {
		if got := humanStatus(in); got != want {
			t.Errorf("humanStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDaemonStatusKind(t *testing.T) {
	cases := map[string]statusKind{
		"starting":      statusInfo,
		"ready":         statusOK,
		"code_starting": statusInfo,
		"code_running":  statusOK,
		"code_finished": statusOK,
		"code_killed":   statusWarn,
		"code_crashed":  statusError,
		"stopping":      statusWarn,
		"code_idle":     statusError,
	}
	for in, want := range cases {
		if got := daemonStatusKind(in); got != want {
			t.Errorf("daemonStatusKind(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderStatusWithoutUsercode(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, statusSnapshot{Status: "ready", PID: 42, Version: "1.0", Source: "udisks"}, false)
	out := buf.String()
	for _, want := range []string{"== Pepper Status ==", "[OK] Ready", "[INFO] 42", "[INFO] udisks", "0 registered", "No usercode drive"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"ID", "Type"}, [][]string{{"AAAA"}}, []columnAlignment{alignLeft})
	if !strings.Contains(out, "AAAA") || !strings.Contains(out, "Type") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
