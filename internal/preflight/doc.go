// Package preflight provides readiness checks for the paths, executables and
// system services pepper depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup and logs a snapshot so a
//     misconfigured host is visible in the daemon log.
//   - The CLI "pepper check" command renders the same results for an
//     operator.
//
// Checks never fail the daemon. Optional results downgrade to warnings.
package preflight
