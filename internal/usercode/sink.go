package usercode

import (
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"

	"pepper/internal/logging"
)

// LineSink receives every line of usercode output.
type LineSink interface {
	WriteLine(executionID, line string)
}

// JournalSink forwards lines to the systemd journal under a fixed identifier.
type JournalSink struct {
	Identifier string
}

func (s JournalSink) WriteLine(executionID, line string) {
	identifier := strings.TrimSpace(s.Identifier)
	if identifier == "" {
		identifier = "pepper2-usercode"
	}
	_ = journal.Send(line, journal.PriInfo, map[string]string{
		"SYSLOG_IDENTIFIER":   identifier,
		"PEPPER_EXECUTION_ID": executionID,
	})
}

// LoggerSink forwards lines to a structured logger.
type LoggerSink struct {
	Logger *slog.Logger
}

func (s LoggerSink) WriteLine(executionID, line string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info(line,
		logging.String(logging.FieldEventType, "usercode_output"),
		logging.String(logging.FieldExecutionID, executionID),
	)
}

// SystemSink picks the journal when requested and reachable, otherwise the
// structured logger.
func SystemSink(useJournal bool, identifier string, logger *slog.Logger) LineSink {
	if useJournal && journal.Enabled() {
		return JournalSink{Identifier: identifier}
	}
	return LoggerSink{Logger: logging.NewComponentLogger(logger, "usercode-output")}
}
