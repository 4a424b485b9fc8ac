package daemon

import (
	"fmt"

	"pepper/internal/usercode"
)

// Status is the daemon's overall status. Values compare only by equality.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusReady        Status = "ready"
	StatusCodeStarting Status = "code_starting"
	StatusCodeRunning  Status = "code_running"
	StatusCodeKilled   Status = "code_killed"
	StatusCodeFinished Status = "code_finished"
	StatusCodeCrashed  Status = "code_crashed"
	StatusStopping     Status = "stopping"
)

var codeStatusMapping = map[usercode.Status]Status{
	usercode.StatusStarting: StatusCodeStarting,
	usercode.StatusRunning:  StatusCodeRunning,
	usercode.StatusKilled:   StatusCodeKilled,
	usercode.StatusFinished: StatusCodeFinished,
	usercode.StatusCrashed:  StatusCodeCrashed,
}

// FromCodeStatus maps a supervisor status onto the daemon status family.
func FromCodeStatus(status usercode.Status) (Status, error) {
	mapped, ok := codeStatusMapping[status]
	if !ok {
		return "", fmt.Errorf("unknown usercode status %q", status)
	}
	return mapped, nil
}

// IsCode reports whether s was derived from a supervisor status.
func (s Status) IsCode() bool {
	switch s {
	case StatusCodeStarting, StatusCodeRunning, StatusCodeKilled, StatusCodeFinished, StatusCodeCrashed:
		return true
	default:
		return false
	}
}

// ParseStatus converts a wire tag back into a Status.
func ParseStatus(tag string) (Status, bool) {
	switch s := Status(tag); s {
	case StatusStarting, StatusReady, StatusStopping:
		return s, true
	default:
		return s, s.IsCode()
	}
}

func (s Status) String() string { return string(s) }
