// Package devices defines what pepper needs from a removable drive backend:
// an enumeration of mounted volumes, per-object resolution, and a stream of
// mount and cleanup jobs.
package devices

import (
	"context"
	"errors"
	"os"
)

// Operation names a device manager job.
type Operation string

const (
	// OperationMount is reported once a filesystem has been mounted.
	OperationMount Operation = "filesystem-mount"
	// OperationCleanup is reported after a volume went away.
	OperationCleanup Operation = "cleanup"
)

// ErrNoMountPoint is returned by Resolve when the object is not mounted.
var ErrNoMountPoint = errors.New("device has no mount point")

// Volume is one mounted filesystem as seen by a device manager.
type Volume struct {
	// ID is the filesystem UUID.
	ID string
	// Object is the manager's handle for the block device (D-Bus object
	// path or device node).
	Object      string
	MountPoints []string
}

// MountPath returns the first mount point that exists on disk.
func (v Volume) MountPath() (string, bool) {
	for _, mp := range v.MountPoints {
		if PathExists(mp) {
			return mp, true
		}
	}
	return "", false
}

// PrimaryMountPath returns the first mount point when it exists on disk.
// Later mount points are not considered.
func (v Volume) PrimaryMountPath() (string, bool) {
	if len(v.MountPoints) == 0 || !PathExists(v.MountPoints[0]) {
		return "", false
	}
	return v.MountPoints[0], true
}

// Job is one asynchronous notification from a device manager.
type Job struct {
	Operation Operation
	// Path identifies the job itself (for logging).
	Path string
	// Objects lists the block devices the job touched. It may be empty.
	Objects []string
	// DriveID is set by sources that know which volume a cleanup removed.
	DriveID string
}

// Source is a removable drive backend.
type Source interface {
	// Name identifies the backend in logs.
	Name() string
	// Enumerate lists currently mounted volumes.
	Enumerate(ctx context.Context) ([]Volume, error)
	// Resolve looks up one block device by the handle carried in a Job.
	Resolve(ctx context.Context, object string) (Volume, error)
	// Watch delivers jobs until ctx is cancelled or the source fails.
	Watch(ctx context.Context, jobs chan<- Job) error
	Close() error
}

// PathExists reports whether path exists on disk.
func PathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
