package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

// Observer receives process lifecycle and output notifications.
// The metrics collector implements it.
type Observer interface {
	ProcessStarted(command string, pid int)
	ChunkRead(streamName string, n int)
	ProcessExited(command string, exitCode int, uptime time.Duration)
}

// Config holds Spawner options. Zero values select defaults.
type Config struct {
	Logger   *slog.Logger
	Observer Observer

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to os.Environ().
	Env []string

	// Stdin feeds the child. Nil means no input (/dev/null). Ignored in PTY mode.
	Stdin io.Reader

	// ChunkSize is the read buffer per pipe Read.
	ChunkSize int

	// BufferSize is the number of chunks queued per stream.
	BufferSize int

	// PTY runs the child on a pseudo-terminal. Stdout and stderr are merged
	// onto the terminal and delivered as stdout chunks.
	PTY bool

	// WrapOutput, when set, wraps each raw output reader ("stdout" or
	// "stderr") before the stream reader consumes it.
	WrapOutput func(stream string, r io.Reader) io.Reader
}

// cancelWaitDelay bounds how long Wait lingers on I/O after a context
// cancel has killed the process group.
const cancelWaitDelay = 2 * time.Second

// Spawner starts commands with a shared configuration.
type Spawner struct {
	config Config
	logger *slog.Logger
}

// NewSpawner creates a Spawner.
func NewSpawner(cfg Config) *Spawner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Spawner{config: cfg, logger: logger}
}

// Spawn starts name with args using default options.
func Spawn(ctx context.Context, name string, args ...string) (*Handle, error) {
	return NewSpawner(Config{}).Spawn(ctx, NewCommand(name, args...))
}

// Spawn starts the command and returns immediately with a live Handle.
//
// Cancelling ctx kills the whole process group, releases paused streams and
// finishes the handle in StateKilled. Spawn fails with *SpawnError if the
// executable cannot be resolved via PATH or the OS refuses to create the
// process.
func (s *Spawner) Spawn(ctx context.Context, command Command) (*Handle, error) {
	if command.Name() == "" {
		return nil, &SpawnError{Command: command, Err: errors.New("empty command name")}
	}
	if _, err := exec.LookPath(command.Name()); err != nil {
		s.logger.Debug("process_lookup_failed", "command", command.Name(), "error", err)
		return nil, &SpawnError{Command: command, Err: err}
	}

	cmd, err := command.BuildCommand(ctx)
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	cmd.Dir = s.config.Dir
	if len(s.config.Env) > 0 {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}

	h := newHandle(command, cmd, s.config, s.logger)
	cmd.Cancel = h.cancel
	cmd.WaitDelay = cancelWaitDelay

	if s.config.PTY {
		err = h.startPTY()
	} else {
		err = h.startPipes(s.config.Stdin)
	}
	if err != nil {
		s.logger.Error("process_start_failed",
			"command", command.String(),
			"error", err,
		)
		return nil, &SpawnError{Command: command, Err: err}
	}

	if wrap := s.config.WrapOutput; wrap != nil {
		h.stdoutSrc = wrap(eventStdout, h.stdoutSrc)
		if h.stderrSrc != nil {
			h.stderrSrc = wrap(eventStderr, h.stderrSrc)
		}
	}

	h.run()
	return h, nil
}

// startPipes wires stdout and stderr pipes and starts the process.
func (h *Handle) startPipes(stdin io.Reader) error {
	h.cmd.Stdin = stdin

	stdout, err := h.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := h.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	// Own process group so Terminate reaches grandchildren too.
	h.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h.startTime = time.Now()
	if err := h.cmd.Start(); err != nil {
		return err
	}
	h.stdoutSrc = stdout
	h.stderrSrc = stderr
	return nil
}

// startPTY starts the process attached to a new pseudo-terminal.
// pty.Start makes the child a session leader, so its pgid equals its pid.
func (h *Handle) startPTY() error {
	h.startTime = time.Now()
	master, err := pty.Start(h.cmd)
	if err != nil {
		return err
	}
	h.ptyMaster = master
	h.stdoutSrc = master
	return nil
}

// commandLabel is the bounded-cardinality label used for metrics.
func commandLabel(c Command) string {
	name := c.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// pipelineConfig returns the stream settings for one output stream.
func (c Config) pipelineConfig(name string) stream.Config {
	return stream.Config{
		Name:       name,
		Mode:       stream.Lossless,
		ChunkSize:  c.ChunkSize,
		BufferSize: c.BufferSize,
	}
}
