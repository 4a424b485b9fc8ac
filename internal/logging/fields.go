package logging

import "log/slog"

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
	// FieldDriveID is the filesystem UUID of the drive a line concerns.
	FieldDriveID = "drive_id"
	// FieldDriveType is the name of the drive type a drive was classified as.
	FieldDriveType = "drive_type"
	// FieldMountPath is the mount point of the drive a line concerns.
	FieldMountPath = "mount_path"
	// FieldExecutionID identifies one run of a usercode program.
	FieldExecutionID = "execution_id"
	// FieldDaemonStatus carries a daemon status tag.
	FieldDaemonStatus = "daemon_status"
	// FieldEventType is a stable machine-readable name for what happened.
	FieldEventType      = "event_type"
	FieldDecisionType   = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

// ForDrive returns a logger tagged with a drive's identity and mount point.
func ForDrive(logger *slog.Logger, driveID, mountPath string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := []Attr{String(FieldDriveID, driveID)}
	if mountPath != "" {
		attrs = append(attrs, String(FieldMountPath, mountPath))
	}
	return logger.With(Args(attrs...)...)
}
