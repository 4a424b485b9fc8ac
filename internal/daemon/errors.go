package daemon

import "errors"

// Caller errors returned by Controller operations. Test with errors.Is.
var (
	ErrNotFound          = errors.New("drive not found")
	ErrDuplicateIdentity = errors.New("drive identity already registered")
	ErrNoActiveProcess   = errors.New("no usercode process running")
	ErrAlreadyRunning    = errors.New("usercode already running")
	ErrNoEligibleDrive   = errors.New("no usercode drive registered")
	ErrStartFailed       = errors.New("usercode failed to start")
)
