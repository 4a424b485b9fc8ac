package ipc

// ServiceName is the RPC service name methods are registered under.
const ServiceName = "Pepper"

// Log sources accepted by LogTail.
const (
	LogSourceDaemon   = "daemon"
	LogSourceUsercode = "usercode"
)

// VersionRequest fetches the daemon version.
type VersionRequest struct{}

// VersionResponse carries the daemon version string.
type VersionResponse struct {
	Version string `json:"version"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse reports the daemon status tag plus process details.
type StatusResponse struct {
	Status   string `json:"status"`
	PID      int    `json:"pid"`
	LockPath string `json:"lock_path"`
	Source   string `json:"source"`
}

// DriveListRequest lists registered drives.
type DriveListRequest struct{}

// DriveListResponse contains drive identities in sorted order.
type DriveListResponse struct {
	Drives []string `json:"drives"`
}

// DriveRequest fetches one drive.
type DriveRequest struct {
	ID string `json:"id"`
}

// DriveResponse describes a drive. When Found is false the other fields are
// empty and TypeIndex is -1.
type DriveResponse struct {
	Found     bool   `json:"found"`
	ID        string `json:"id"`
	MountPath string `json:"mount_path"`
	TypeIndex int    `json:"type_index"`
	TypeName  string `json:"type_name"`
}

// DriveTypesRequest fetches the drive type table.
type DriveTypesRequest struct{}

// DriveTypesResponse lists type names in table order, so a TypeIndex can be
// turned back into a name.
type DriveTypesResponse struct {
	Types []string `json:"types"`
}

// KillUsercodeRequest stops the running usercode.
type KillUsercodeRequest struct{}

// KillUsercodeResponse reports whether a running process was stopped.
type KillUsercodeResponse struct {
	Killed  bool   `json:"killed"`
	Message string `json:"message"`
}

// StartUsercodeRequest starts usercode on the registered usercode drive.
type StartUsercodeRequest struct{}

// StartUsercodeResponse reports whether an idle supervisor was started.
type StartUsercodeResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// UsercodeDriveRequest fetches the drive owning usercode.
type UsercodeDriveRequest struct{}

// UsercodeDriveResponse carries the owning drive identity, or "".
type UsercodeDriveResponse struct {
	ID string `json:"id"`
}

// UsercodeDriverNameRequest fetches the active driver name.
type UsercodeDriverNameRequest struct{}

// UsercodeDriverNameResponse carries the driver name, or "".
type UsercodeDriverNameResponse struct {
	Name string `json:"name"`
}

// WaitStatusRequest blocks until the status differs from Last or the timeout
// passes.
type WaitStatusRequest struct {
	Last          string `json:"last"`
	TimeoutMillis int    `json:"timeout_millis"`
}

// WaitStatusResponse carries the status at the time the wait ended.
type WaitStatusResponse struct {
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
}

// LogTailRequest reads lines from the daemon log or the usercode log on the
// usercode drive.
type LogTailRequest struct {
	Source     string `json:"source"`
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse contains log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
