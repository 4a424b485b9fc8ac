// Package logging assembles the structured slog loggers used across pepper.
//
// It owns the console and JSON handlers, parses levels, fans records out to
// the terminal and the daemon log file, and exposes attribute helpers plus the
// standard field keys (drive_id, execution_id, event_type, ...). NewNop gives
// tests and wiring code a logger that cannot fail.
package logging
