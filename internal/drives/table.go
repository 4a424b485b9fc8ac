package drives

import (
	"errors"
	"fmt"
)

// Table is the priority-ordered list of drive types.
type Table struct {
	types    []*Type
	catchAll *Type
}

// NewTable validates and builds a table. Exactly one catch-all is required,
// it must come last, and its constraint must match even a path that does not
// exist.
func NewTable(types ...*Type) (*Table, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no drive types", ErrClassification)
	}
	var catchAll *Type
	seen := make(map[string]struct{}, len(types))
	for i, t := range types {
		if t == nil || t.Constraint == nil {
			return nil, fmt.Errorf("%w: drive type %d has no constraint", ErrClassification, i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate drive type %q", ErrClassification, t.Name)
		}
		seen[t.Name] = struct{}{}
		if !t.CatchAll {
			continue
		}
		if catchAll != nil {
			return nil, fmt.Errorf("%w: more than one catch-all type", ErrClassification)
		}
		if i != len(types)-1 {
			return nil, fmt.Errorf("%w: catch-all type %q must be last", ErrClassification, t.Name)
		}
		if t.StartsUsercode {
			return nil, fmt.Errorf("%w: catch-all type %q must not start usercode", ErrClassification, t.Name)
		}
		if !t.Constraint.Matches("") {
			return nil, fmt.Errorf("%w: catch-all type %q does not match unconditionally", ErrClassification, t.Name)
		}
		catchAll = t
	}
	if catchAll == nil {
		return nil, fmt.Errorf("%w: missing catch-all type", ErrClassification)
	}
	return &Table{types: append([]*Type(nil), types...), catchAll: catchAll}, nil
}

// Classify returns the first type whose constraint matches path.
func (t *Table) Classify(path string) (*Type, error) {
	if t == nil {
		return nil, errors.New("nil drive type table")
	}
	for _, candidate := range t.types {
		if candidate.Matches(path) {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%w: no type matches %q", ErrClassification, path)
}

// Index returns the position of the named type, or -1.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, candidate := range t.types {
		if candidate.Name == name {
			return i
		}
	}
	return -1
}

// CatchAll returns the fallback type.
func (t *Table) CatchAll() *Type {
	if t == nil {
		return nil
	}
	return t.catchAll
}

// Types returns the types in priority order.
func (t *Table) Types() []*Type {
	if t == nil {
		return nil
	}
	return append([]*Type(nil), t.types...)
}
