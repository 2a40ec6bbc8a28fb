package process

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Result captures the outcome of a process execution.
type Result struct {
	Pid       int
	ExitCode  int
	StartTime time.Time
	EndTime   time.Time
	Error     error // error returned by Wait, nil on exit status 0
}

// Uptime returns how long the process ran.
func (r Result) Uptime() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Success reports a clean exit.
func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// extractExitCode extracts the exit code from a Wait() error.
// Signalled exits map to 128 + signal number, like a shell.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
