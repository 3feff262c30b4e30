package interfaces

import "context"

// ProcessInfo describes an OS process found by a scan
type ProcessInfo struct {
	PID     int
	Cmdline string
}

// ProcessInspector discovers and signals OS processes. Signalling a process
// that has already exited returns an error and has no other effect.
type ProcessInspector interface {
	// Processes lists running processes with their command lines
	Processes(ctx context.Context) ([]ProcessInfo, error)

	// Terminate asks a process to exit
	Terminate(pid int) error

	// Kill forcibly stops a process
	Kill(pid int) error

	// Alive reports whether a process still exists
	Alive(pid int) bool

	// PIDsOnPort lists processes listening on a TCP port
	PIDsOnPort(ctx context.Context, port int) ([]int, error)

	// PIDsMatching lists processes whose full command line matches pattern
	PIDsMatching(ctx context.Context, pattern string) ([]int, error)
}
