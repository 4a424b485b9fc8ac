// Package drives classifies mounted volumes.
//
// A Type pairs a constraint over the mount path with three lifecycle hooks.
// A Table holds the types in priority order and hands out the first match;
// its last entry is a catch-all so classification is total. Hooks act on the
// daemon through the Host interface and never touch daemon state directly.
package drives
