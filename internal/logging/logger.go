package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pepper/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths are rendered in Format. "stdout" and "stderr" are recognised.
	OutputPaths []string
	// FilePaths always receive JSON lines regardless of Format.
	FilePaths   []string
	SessionID   string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 && len(opts.FilePaths) == 0 {
		outputs = []string{"stdout"}
	}

	var sinks []slog.Handler
	if len(outputs) > 0 {
		writer, err := openWriters(outputs)
		if err != nil {
			return nil, err
		}
		switch format {
		case "json":
			sinks = append(sinks, newJSONHandler(writer, levelVar, addSource))
		case "console":
			sinks = append(sinks, newConsoleHandler(writer, levelVar, addSource))
		default:
			return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
		}
	}
	if len(opts.FilePaths) > 0 {
		writer, err := openWriters(opts.FilePaths)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, newJSONHandler(writer, levelVar, addSource))
	}

	return slog.New(withSession(newTeeHandler(sinks...), opts.SessionID)), nil
}

// NewFromConfig creates the daemon logger: configured format on stdout plus
// JSON lines in the daemon log file under the runtime directory.
func NewFromConfig(cfg *config.Config, sessionID string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", OutputPaths: []string{"stdout"}, SessionID: sessionID})
	}

	opts := Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		SessionID:   sessionID,
	}
	if strings.TrimSpace(cfg.Paths.RuntimeDir) != "" {
		if err := os.MkdirAll(cfg.Paths.RuntimeDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure runtime directory: %w", err)
		}
		opts.FilePaths = []string{cfg.DaemonLogPath()}
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
