package drives

import (
	"pepper/internal/constraint"
)

// Kind tags the closed set of drive type variants.
type Kind int

const (
	KindUsercode Kind = iota
	KindMetadata
	KindNoAction
)

func (k Kind) String() string {
	switch k {
	case KindUsercode:
		return "usercode"
	case KindMetadata:
		return "metadata"
	case KindNoAction:
		return "no_action"
	default:
		return "unknown"
	}
}

// Hook is a drive lifecycle action.
type Hook func(h Host, d Drive)

// Type describes one kind of drive. Types are immutable once built.
type Type struct {
	Kind       Kind
	Name       string
	Constraint constraint.Constraint
	// StartsUsercode marks types whose mount hook attaches a supervisor.
	StartsUsercode bool
	// CatchAll marks the fallback type that must match every path.
	CatchAll bool

	// OnStartup runs for drives already mounted when the daemon starts.
	// Nil means OnMount.
	OnStartup Hook
	OnMount   Hook
	OnUnmount Hook
}

// Matches reports whether path satisfies the type's constraint.
func (t *Type) Matches(path string) bool {
	if t == nil || t.Constraint == nil {
		return false
	}
	return t.Constraint.Matches(path)
}

// Startup runs the startup hook, falling back to the mount hook.
func (t *Type) Startup(h Host, d Drive) {
	if t == nil {
		return
	}
	if t.OnStartup != nil {
		t.OnStartup(h, d)
		return
	}
	t.Mount(h, d)
}

// Mount runs the mount hook.
func (t *Type) Mount(h Host, d Drive) {
	if t != nil && t.OnMount != nil {
		t.OnMount(h, d)
	}
}

// Unmount runs the unmount hook.
func (t *Type) Unmount(h Host, d Drive) {
	if t != nil && t.OnUnmount != nil {
		t.OnUnmount(h, d)
	}
}
