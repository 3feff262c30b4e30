package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound means the gateway settings file does not exist
	ErrConfigNotFound = errors.New("config file not found")
	// ErrExecutableNotFound means neither launch command could be resolved
	ErrExecutableNotFound = errors.New("gateway executable not found")
	// ErrStartTimeout means the gateway did not become healthy in time
	ErrStartTimeout = errors.New("gateway did not become ready")
	// ErrProcessExited means the gateway exited before becoming healthy
	ErrProcessExited = errors.New("gateway process exited")
)

// LaunchError describes a failed Start
type LaunchError struct {
	// Reason is a human-readable summary
	Reason string

	// Output holds the last lines the process printed
	Output []string

	// ExitCode is set when the process had exited
	ExitCode *int

	// Cause is one of the Err* sentinels or an underlying error
	Cause error
}

// Error implements the error interface
func (e *LaunchError) Error() string {
	msg := "failed to start gateway: " + e.Reason
	if e.ExitCode != nil {
		msg = fmt.Sprintf("%s (exit code %d)", msg, *e.ExitCode)
	}
	return msg
}

// Unwrap returns the cause
func (e *LaunchError) Unwrap() error {
	return e.Cause
}
