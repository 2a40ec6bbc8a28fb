// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	// MinFileDescriptors covers the child's pipes or pty, the metrics
	// listener and its connections, logging, and headroom.
	MinFileDescriptors = 64

	// MinProcesses is the process slots needed for the child and a few
	// grandchildren.
	MinProcesses = 16
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what to check.
type Options struct {
	Command string // resolved via PATH unless it contains a slash
	Dir     string // working directory, "" = current
	PTY     bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkCommand(opts.Command))
	if opts.Dir != "" {
		add(checkWorkingDir(opts.Dir))
	}
	add(checkFileDescriptors())
	add(checkProcessLimit("/proc/self/limits"))
	if opts.PTY {
		add(checkPTY())
	}

	return result
}

// checkCommand verifies the executable resolves and is runnable.
func checkCommand(name string) Check {
	if name == "" {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: "no command given",
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", name, err),
		}
	}

	return Check{
		Name:    "command",
		Passed:  true,
		Message: fmt.Sprintf("%s found at %s", name, path),
	}
}

// checkWorkingDir verifies the working directory exists.
func checkWorkingDir(dir string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "working_dir",
			Passed:  false,
			Message: err.Error(),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "working_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	return Check{
		Name:    "working_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := clampInt(limit.Cur)
	return Check{
		Name:     "file_descriptors",
		Required: MinFileDescriptors,
		Actual:   actual,
		Passed:   actual >= MinFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, MinFileDescriptors),
	}
}

// checkProcessLimit reads the soft "Max processes" limit from a
// /proc/<pid>/limits file.
func checkProcessLimit(limitsPath string) Check {
	data, err := os.ReadFile(limitsPath)
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: MinProcesses,
		Actual:   actual,
		Passed:   actual >= MinProcesses,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, MinProcesses),
	}
}

// parseMaxProcesses returns the soft limit of the "Max processes" line, or 0.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkPTY verifies a pseudo-terminal can be allocated.
func checkPTY() Check {
	master, tty, err := pty.Open()
	if err != nil {
		return Check{
			Name:    "pty",
			Passed:  false,
			Message: fmt.Sprintf("cannot allocate a pseudo-terminal: %v", err),
		}
	}
	name := tty.Name()
	tty.Close()
	master.Close()

	return Check{
		Name:    "pty",
		Passed:  true,
		Message: fmt.Sprintf("allocated %s", name),
	}
}

func clampInt(v uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint64(maxInt) {
		return maxInt
	}
	return int(v)
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 256 (or edit /etc/security/limits.conf)"
	case "command":
		return "check the command name and PATH, or pass an absolute path"
	case "working_dir":
		return "create the directory or fix -dir"
	case "pty":
		return "run without -pty, or check /dev/ptmx and devpts"
	default:
		return "see documentation"
	}
}
