package metrics

// Device job results.
const (
	JobRegistered = "registered"
	JobRemoved    = "removed"
	JobDropped    = "dropped"
	JobIgnored    = "ignored"
)

// Recorder defines observability hooks for the daemon controller and the
// device event adapter.
type Recorder interface {
	SetDaemonStatus(status string)
	SetRegisteredDrives(n int)
	IncUsercodeOutcome(outcome string)
	IncDeviceJob(operation, result string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) SetDaemonStatus(string)      {}
func (NoopRecorder) SetRegisteredDrives(int)     {}
func (NoopRecorder) IncUsercodeOutcome(string)   {}
func (NoopRecorder) IncDeviceJob(string, string) {}
