// Package main hosts the pepper CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground and translates
// terminal invocations into JSON-RPC calls against it: daemon status, the
// drive registry, usercode control and log tailing. Configuration scaffolding
// lives here too. Heavy lifting belongs in the internal packages; commands
// only resolve configuration, dial the socket and render results.
package main
