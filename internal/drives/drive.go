package drives

import (
	"errors"
	"log/slog"

	"pepper/internal/usercode"
)

// ErrClassification is returned when no type matches a path, which only
// happens when the table lacks a working catch-all.
var ErrClassification = errors.New("drive classification failed")

// Drive is a registered, mounted volume.
type Drive struct {
	ID        string
	MountPath string
	Type      *Type
}

// TypeName returns the name of the drive's type, or "" if unclassified.
func (d Drive) TypeName() string {
	if d.Type == nil {
		return ""
	}
	return d.Type.Name
}

// Host is the daemon surface available to hooks.
type Host interface {
	// AttachUsercode creates and starts the supervisor for d.
	AttachUsercode(d Drive, driver usercode.Driver) error
	// ReleaseUsercode drops d's usercode reservation when nothing was attached.
	ReleaseUsercode(d Drive)
	// DetachUsercode stops and clears the supervisor if d owns it.
	DetachUsercode(d Drive)
	Logger() *slog.Logger
}
