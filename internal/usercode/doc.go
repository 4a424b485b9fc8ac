// Package usercode supervises the child process that runs the payload found on
// a usercode drive.
//
// A Supervisor owns at most one execution at a time. Start spawns the driver's
// command in its own process group with stdin disconnected and stdout/stderr
// merged into one pipe; a drain goroutine copies every line to a log file on
// the drive and to a system sink (the systemd journal when available). The
// execution ends in exactly one of two ways: the reaper observes a natural
// exit (Finished or Crashed), or Stop escalates SIGTERM to SIGKILL after the
// grace period (Killed). An atomic claim per execution decides which path runs
// cleanup.
//
// Status transitions are pushed to the owner through Options.OnStatus; the
// package knows nothing about drives or the daemon.
package usercode
