package constraint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Constraint is a predicate over a filesystem path.
type Constraint interface {
	Matches(path string) bool
	String() string
}

type trueConstraint struct{}

// True matches every path.
func True() Constraint { return trueConstraint{} }

func (trueConstraint) Matches(string) bool { return true }
func (trueConstraint) String() string      { return "true" }

type falseConstraint struct{}

// False matches no path.
func False() Constraint { return falseConstraint{} }

func (falseConstraint) Matches(string) bool { return false }
func (falseConstraint) String() string      { return "false" }

type filePresent struct {
	name string
}

// FilePresent matches a directory that contains an entry called name.
func FilePresent(name string) Constraint {
	return filePresent{name: name}
}

func (c filePresent) Matches(path string) bool {
	if !isDir(path) {
		return false
	}
	_, err := os.Stat(filepath.Join(path, c.name))
	return err == nil
}

func (c filePresent) String() string { return fmt.Sprintf("file_present(%q)", c.name) }

type fileCount struct {
	n int
}

// FileCount matches a directory holding exactly n entries.
func FileCount(n int) Constraint {
	return fileCount{n: n}
}

func (c fileCount) Matches(path string) bool {
	if !isDir(path) {
		return false
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	return len(entries) == c.n
}

func (c fileCount) String() string { return fmt.Sprintf("file_count(%d)", c.n) }

type and struct {
	a, b Constraint
}

// And matches when both a and b match. Both sides are always evaluated.
func And(a, b Constraint) Constraint {
	return and{a: a, b: b}
}

func (c and) Matches(path string) bool {
	left := c.a.Matches(path)
	right := c.b.Matches(path)
	return left && right
}

func (c and) String() string { return fmt.Sprintf("and(%s, %s)", c.a, c.b) }

type or struct {
	a, b Constraint
}

// Or matches when either a or b matches. Both sides are always evaluated.
func Or(a, b Constraint) Constraint {
	return or{a: a, b: b}
}

func (c or) Matches(path string) bool {
	left := c.a.Matches(path)
	right := c.b.Matches(path)
	return left || right
}

func (c or) String() string { return fmt.Sprintf("or(%s, %s)", c.a, c.b) }

type not struct {
	c Constraint
}

// Not inverts c.
func Not(c Constraint) Constraint {
	return not{c: c}
}

func (c not) Matches(path string) bool { return !c.c.Matches(path) }
func (c not) String() string           { return fmt.Sprintf("not(%s)", c.c) }

// AnyFilePresent folds FilePresent over names with Or, starting from False.
// An empty list never matches.
func AnyFilePresent(names ...string) Constraint {
	var result Constraint = False()
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		result = Or(result, FilePresent(name))
	}
	return result
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
