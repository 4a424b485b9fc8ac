// Package constraint implements the predicates used to recognise what a
// mounted volume carries.
//
// A Constraint inspects a directory and reports whether it matches. Every
// constraint is pure: it never mutates the filesystem and reports false for a
// path that does not exist or is not a directory instead of failing. Complex
// rules are built by combining the primitives with And, Or and Not; True and
// False act as identities when folding a dynamic list into a single rule.
package constraint
