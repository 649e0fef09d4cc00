// Package execshell runs external executables for ghbot.
//
// ShellExecutor wraps a CommandRunner with zap logging and lifecycle observers,
// converts non-zero exits into CommandFailedError values that keep standard
// error verbatim, and OSCommandRunner provides the os/exec implementation used
// to invoke gh.
package execshell
