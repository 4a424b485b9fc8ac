package usercode

// Status is the lifecycle state of a supervised execution.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusKilled   Status = "killed"
	StatusFinished Status = "finished"
	StatusCrashed  Status = "crashed"
)

// Terminal reports whether the status ends an execution. A supervisor in a
// terminal state is idle and may be restarted or replaced.
func (s Status) Terminal() bool {
	switch s {
	case StatusKilled, StatusFinished, StatusCrashed:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
