package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when no sink is set")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatal("expected a single sink to be returned as is")
	}
}

func TestTeeHandlerRespectsSinkLevels(t *testing.T) {
	var stdout, file bytes.Buffer
	h := newTeeHandler(
		slog.NewJSONHandler(&stdout, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String(FieldDriveID, "1234-ABCD")}))

	logger.Debug("settling")
	if stdout.Len() != 0 || file.Len() == 0 {
		t.Fatalf("debug routed wrong: stdout=%q file=%q", stdout.String(), file.String())
	}
	logger.Warn("drive vanished")
	for name, buf := range map[string]*bytes.Buffer{"stdout": &stdout, "file": &file} {
		if !strings.Contains(buf.String(), "drive vanished") || !strings.Contains(buf.String(), `"drive_id":"1234-ABCD"`) {
			t.Fatalf("%s missing warn record: %s", name, buf.String())
		}
	}
}

func TestWithSessionTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	if withSession(base, "  ") != base {
		t.Fatal("blank session id should leave the handler untouched")
	}
	logger := slog.New(withSession(base, "run-7")).WithGroup("usercode")
	logger.Info("started", slog.Int("pid", 42))

	if !strings.Contains(buf.String(), `"session_id":"run-7"`) {
		t.Fatalf("missing session id: %s", buf.String())
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newJSONHandler(&buf, slog.LevelInfo, true)).Warn("usercode crashed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "usercode crashed" {
		t.Fatalf("unexpected entry %v", entry)
	}
	ts, _ := entry["ts"].(string)
	if _, err := time.Parse(jsonTimestampLayout, ts); err != nil {
		t.Fatalf("unexpected ts %q: %v", ts, err)
	}
	caller, _ := entry["caller"].(string)
	if !strings.HasPrefix(caller, "handlers_test.go:") {
		t.Fatalf("unexpected caller %q", caller)
	}
}

func TestFormatValueQuoting(t *testing.T) {
	cases := []struct {
		value slog.Value
		want  string
	}{
		{slog.StringValue("ready"), "ready"},
		{slog.StringValue("/media/my drive"), `"/media/my drive"`},
		{slog.StringValue(""), `""`},
		{slog.IntValue(3), "3"},
		{slog.DurationValue(5 * time.Second), "5s"},
		{slog.AnyValue(errors.New("exit status 1")), `"exit status 1"`},
	}
	for _, tc := range cases {
		if got := formatValue(tc.value); got != tc.want {
			t.Errorf("formatValue(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
	if got := attrString(slog.StringValue("a b")); got != "a b" {
		t.Fatalf("attrString quoted its value: %q", got)
	}
}

func TestWarnWithContextDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "downgraded", "usercode_drive_downgraded",
		String(FieldImpact, "second drive will not run code"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[FieldEventType] != "usercode_drive_downgraded" || entry[FieldImpact] != "second drive will not run code" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry[FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	WarnWithContext(nil, "ignored", "x")
}

func TestDecisionAttrs(t *testing.T) {
	if attrs := DecisionAttrs("drive_classification", "no_action", ""); len(attrs) != 2 {
		t.Fatalf("expected reason omitted, got %v", attrs)
	}
	attrs := DecisionAttrs("usercode_attach", "denied", "usercode already active")
	if attrs[2].Key != FieldDecisionReason || attrs[2].Value.String() != "usercode already active" {
		t.Fatalf("unexpected attrs %v", attrs)
	}
	if slog.New(NoopHandler{}).Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop handler must be disabled")
	}
}
