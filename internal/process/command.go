// Package process launches external commands and relays their output.
package process

import (
	"context"
	"os/exec"
	"strings"
)

// Command is an executable name and its argument vector.
// It is immutable: the constructor and accessors copy the arguments.
type Command struct {
	name string
	args []string
}

// NewCommand creates a Command. The name is resolved via PATH at spawn time
// unless it contains a path separator.
func NewCommand(name string, args ...string) Command {
	c := Command{name: name}
	if len(args) > 0 {
		c.args = make([]string, len(args))
		copy(c.args, args)
	}
	return c
}

// Name returns the executable name.
func (c Command) Name() string {
	return c.name
}

// Args returns a copy of the arguments.
func (c Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// String returns the command line (for logging; not shell-quoted).
func (c Command) String() string {
	if len(c.args) == 0 {
		return c.name
	}
	return c.name + " " + strings.Join(c.args, " ")
}

// BuildCommand returns an unstarted exec.Cmd bound to ctx. The argument
// vector is passed verbatim.
func (c Command) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, c.name, c.args...), nil
}
