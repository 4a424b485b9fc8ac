package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Keys listed here lead the field block of INFO and above, in this order.
var consoleLeadKeys = []string{
	FieldEventType,
	FieldDecisionType,
	FieldDecisionResult,
	FieldDecisionReason,
	FieldDaemonStatus,
	FieldDriveType,
	FieldMountPath,
	"driver",
	"pid",
	"return_code",
	"status",
	"error",
	FieldErrorHint,
	FieldImpact,
}

var consoleLabels = map[string]string{
	FieldEventType:      "Event",
	FieldDecisionType:   "Decision",
	FieldDecisionResult: "Decision",
	FieldDecisionReason: "Why",
	FieldErrorHint:      "Hint",
	FieldDaemonStatus:   "Status",
	FieldDriveType:      "Type",
	FieldMountPath:      "Mount",
	"pid":               "PID",
}

// consoleHandler renders human-oriented lines:
//
//	2026-01-02 15:04:05 INFO [controller] drive 1234-ABCD (run 0f3c9a2e) - drive registered
//	    - Event: drive_registered
//	    - Mount: /media/usb
//
// DEBUG records list every attribute by raw key instead.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	attrs     []kv
	groups    []string
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		next.attrs = appendFlat(next.attrs, h.groups, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := slices.Clone(h.attrs)
	record.Attrs(func(a slog.Attr) bool {
		attrs = appendFlat(attrs, h.groups, a)
		return true
	})
	attrs = lastValueWins(attrs)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component := lookup(attrs, FieldComponent); component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject := subjectOf(lookup(attrs, FieldDriveID), lookup(attrs, FieldExecutionID)); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" - " + message)
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, a := range attrs {
			if a.key == FieldComponent {
				continue
			}
			buf.WriteString("    " + a.key + ": " + formatValue(a.value) + "\n")
		}
	} else {
		for _, a := range orderForDisplay(attrs) {
			buf.WriteString("    - " + displayLabel(a.key) + ": " + displayValue(a.key, a.value) + "\n")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// orderForDisplay drops keys already shown in the header and those only
// useful when debugging, then puts the lead keys first.
func orderForDisplay(attrs []kv) []kv {
	shown := make([]kv, 0, len(attrs))
	for _, a := range attrs {
		if !headerKey(a.key) && !debugOnlyKey(a.key) {
			shown = append(shown, a)
		}
	}
	rank := func(key string) int {
		if i := slices.Index(consoleLeadKeys, key); i >= 0 {
			return i
		}
		return len(consoleLeadKeys)
	}
	slices.SortStableFunc(shown, func(a, b kv) int { return rank(a.key) - rank(b.key) })
	return shown
}

func headerKey(key string) bool {
	switch key {
	case FieldComponent, FieldDriveID, FieldExecutionID, FieldSessionID:
		return true
	}
	return false
}

func debugOnlyKey(key string) bool {
	switch key {
	case "object", "job_path", "devpath", "devname":
		return true
	}
	return strings.HasSuffix(key, "_id")
}

func displayLabel(key string) string {
	if label, ok := consoleLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func displayValue(key string, v slog.Value) string {
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	s := formatValue(v)
	if key == "error" && len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// subjectOf renders the "drive 1234-ABCD (run 0f3c9a2e)" line prefix.
func subjectOf(driveID, executionID string) string {
	if len(executionID) > 8 {
		executionID = executionID[:8]
	}
	switch {
	case driveID != "" && executionID != "":
		return "drive " + driveID + " (run " + executionID + ")"
	case driveID != "":
		return "drive " + driveID
	case executionID != "":
		return "run " + executionID
	}
	return ""
}

func lookup(attrs []kv, key string) string {
	for _, a := range attrs {
		if a.key == key {
			return strings.TrimSpace(attrString(a.value))
		}
	}
	return ""
}

func appendFlat(dst []kv, groups []string, a slog.Attr) []kv {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			groups = append(slices.Clone(groups), a.Key)
		}
		for _, member := range a.Value.Group() {
			dst = appendFlat(dst, groups, member)
		}
		return dst
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(append(slices.Clone(groups), a.Key), ".")
	}
	return append(dst, kv{key: key, value: a.Value})
}

// lastValueWins keeps the first position of each key with its latest value,
// so a drive logger re-tagged with a new mount path shows it once.
func lastValueWins(attrs []kv) []kv {
	out := make([]kv, 0, len(attrs))
	pos := make(map[string]int, len(attrs))
	for _, a := range attrs {
		if a.key == "" {
			continue
		}
		if i, ok := pos[a.key]; ok {
			out[i].value = a.value
			continue
		}
		pos[a.key] = len(out)
		out = append(out, a)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
