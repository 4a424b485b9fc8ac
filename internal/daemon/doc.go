// Package daemon coordinates the long-running pepper process.
//
// The Controller owns all shared state: the daemon status, the registry of
// mounted drives, and the at-most-one usercode supervisor. The Adapter turns
// device manager enumeration and jobs into controller calls and dispatches
// drive type hooks. Daemon ties both to a device source under a flock-based
// single-instance lock and runs the ordered shutdown.
//
// Every producer (device jobs, usercode exit, usercode status) reaches shared
// state only through Controller methods. The controller never holds its lock
// while starting or stopping a process.
package daemon
