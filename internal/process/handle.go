package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-proc-relay/internal/events"
	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

// Chunk is one read from a child's output pipe. Each callback receives its
// own copy.
type Chunk []byte

// Event names on the Handle's internal emitter.
const (
	eventStdout = "stdout"
	eventStderr = "stderr"
	eventError  = "error"
	eventExit   = "exit"
)

// ErrNotRunning is returned when signalling a process that already exited.
var ErrNotRunning = errors.New("process is not running")

// gate holds a stream paused until it is opened. Opening is idempotent.
type gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

func (g *gate) isOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// outStream is one output stream: its pipeline, the gate holding it paused
// and a channel closed once its dispatcher has delivered every chunk.
type outStream struct {
	name     string
	pipeline *stream.Pipeline
	gate     *gate
	drained  chan struct{}
}

func newOutStream(name string, cfg Config) *outStream {
	return &outStream{
		name:     name,
		pipeline: stream.NewPipeline(cfg.pipelineConfig(name)),
		gate:     newGate(),
		drained:  make(chan struct{}),
	}
}

// flowingUndrained reports whether the stream is flowing but not finished.
func (s *outStream) flowingUndrained() bool {
	if !s.gate.isOpen() {
		return false
	}
	select {
	case <-s.drained:
		return false
	default:
		return true
	}
}

// Handle is a live child process. It is created by Spawn and finished when
// the process exits or is killed; it is never reused.
//
// Output streams start paused: chunks are queued (up to the configured
// buffer) until the first callback for that stream is registered, or until
// Wait, Kill or Terminate is called. Callbacks run on a dispatcher goroutine,
// one per stream, in registration order.
//
// Exit is reported after every flowing stream has been dispatched. A stream
// still paused when the process exits keeps its queued chunks for a later
// registration.
type Handle struct {
	command  Command
	cmd      *exec.Cmd
	logger   *slog.Logger
	observer Observer
	bus      *events.Emitter

	stdoutSrc io.Reader
	stderrSrc io.Reader
	ptyMaster *os.File

	stdout *outStream
	stderr *outStream

	stateMu   sync.RWMutex
	state     State
	killed    bool
	startTime time.Time

	// exitMu orders gate opening against the exit decision.
	exitMu   sync.Mutex
	finished bool
	result   Result
	done     chan struct{}
}

func newHandle(command Command, cmd *exec.Cmd, cfg Config, logger *slog.Logger) *Handle {
	return &Handle{
		command:  command,
		cmd:      cmd,
		logger:   logger,
		observer: cfg.Observer,
		bus:      events.New(),
		stdout:   newOutStream(eventStdout, cfg),
		stderr:   newOutStream(eventStderr, cfg),
		state:    StateStarting,
		done:     make(chan struct{}),
	}
}

// run starts the reader, dispatcher and waiter goroutines.
func (h *Handle) run() {
	pid := h.cmd.Process.Pid
	h.setState(StateRunning)

	h.logger.Info("process_started",
		"command", h.command.String(),
		"pid", pid,
		"pty", h.ptyMaster != nil,
	)
	if h.observer != nil {
		h.observer.ProcessStarted(commandLabel(h.command), pid)
	}

	var readers sync.WaitGroup

	h.startStream(&readers, h.stdout, h.stdoutSrc)
	if h.stderrSrc != nil {
		h.startStream(&readers, h.stderr, h.stderrSrc)
	} else {
		// PTY mode: nothing is ever written to the stderr pipeline.
		h.stderr.pipeline.CloseChannel()
		h.stderr.gate.open()
		close(h.stderr.drained)
	}

	go func() {
		// Wait must not be called before all reads from the pipes complete.
		readers.Wait()
		waitErr := h.cmd.Wait()
		end := time.Now()
		if h.ptyMaster != nil {
			h.ptyMaster.Close()
		}

		h.finish(pid, waitErr, end)
	}()
}

func (h *Handle) startStream(readers *sync.WaitGroup, s *outStream, src io.Reader) {
	readers.Add(1)
	go func() {
		defer readers.Done()
		if err := s.pipeline.RunReader(src); err != nil {
			h.logger.Warn("process_read_error",
				"command", h.command.String(),
				"stream", s.name,
				"error", err,
			)
		}
	}()

	// Read errors are emitted once the stream flows, after its earlier chunks.
	go func() {
		defer close(s.drained)
		<-s.gate.ch
		s.pipeline.RunDispatcher(func(chunk []byte) {
			if h.observer != nil {
				h.observer.ChunkRead(s.name, len(chunk))
			}
			_ = h.bus.Emit(s.name, Chunk(chunk))
		})
		if err := s.pipeline.Err(); err != nil {
			_ = h.bus.Emit(eventError, err)
		}
	}()
}

// pendingDrains returns the drained channels of flowing streams that still
// have chunks to deliver. Callers hold exitMu.
func (h *Handle) pendingDrains() []chan struct{} {
	var pending []chan struct{}
	for _, s := range []*outStream{h.stdout, h.stderr} {
		if s.flowingUndrained() {
			pending = append(pending, s.drained)
		}
	}
	return pending
}

// openStreams switches both streams to flowing.
func (h *Handle) openStreams() {
	h.exitMu.Lock()
	h.stdout.gate.open()
	h.stderr.gate.open()
	h.exitMu.Unlock()
}

func (h *Handle) openStream(s *outStream) {
	h.exitMu.Lock()
	s.gate.open()
	h.exitMu.Unlock()
}

func (h *Handle) finish(pid int, waitErr error, end time.Time) {
	res := Result{
		Pid:       pid,
		ExitCode:  extractExitCode(waitErr),
		StartTime: h.startTime,
		EndTime:   end,
		Error:     waitErr,
	}

	h.stateMu.Lock()
	if h.killed {
		h.state = StateKilled
	} else {
		h.state = StateExited
	}
	h.stateMu.Unlock()

	attrs := []any{
		"command", h.command.String(),
		"pid", pid,
		"exit_code", res.ExitCode,
		"uptime", res.Uptime().String(),
	}
	for _, s := range []*outStream{h.stdout, h.stderr} {
		if err := s.pipeline.Err(); err != nil {
			attrs = append(attrs, s.name+"_error", err.Error())
		}
	}
	h.logger.Info("process_exited", attrs...)
	if h.observer != nil {
		h.observer.ProcessExited(commandLabel(h.command), res.ExitCode, res.Uptime())
	}

	// A stream may start flowing while we wait for another, so recheck
	// under the lock until nothing is pending.
	for {
		h.exitMu.Lock()
		pending := h.pendingDrains()
		if len(pending) == 0 {
			h.finished = true
			h.result = res
			h.exitMu.Unlock()
			break
		}
		h.exitMu.Unlock()
		for _, ch := range pending {
			<-ch
		}
	}

	_ = h.bus.Emit(eventExit, res)
	close(h.done)
}

// OnStdout registers a callback invoked once per stdout chunk and switches
// the stdout stream to flowing.
func (h *Handle) OnStdout(fn func(Chunk)) {
	if fn == nil {
		return
	}
	h.bus.On(eventStdout, chunkListener(fn))
	h.openStream(h.stdout)
}

// OnStderr registers a callback invoked once per stderr chunk and switches
// the stderr stream to flowing. In PTY mode stderr is merged into stdout and
// the callback never fires.
func (h *Handle) OnStderr(fn func(Chunk)) {
	if fn == nil {
		return
	}
	h.bus.On(eventStderr, chunkListener(fn))
	h.openStream(h.stderr)
}

// OnError registers a callback for pipe read errors. Read errors end the
// affected stream; they are not retried. An error is delivered after the
// stream's earlier chunks and before exit.
func (h *Handle) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	h.bus.On(eventError, func(args ...any) error {
		if err, ok := args[0].(error); ok {
			fn(err)
		}
		return nil
	})
}

// OnExit registers a callback invoked once with the process Result, after
// all flowing output has been dispatched. If the process already finished,
// fn is called on the caller's goroutine once flowing streams have drained,
// so OnExit must not be called from an output callback after exit.
func (h *Handle) OnExit(fn func(Result)) {
	if fn == nil {
		return
	}
	h.exitMu.Lock()
	if h.finished {
		res := h.result
		pending := h.pendingDrains()
		h.exitMu.Unlock()
		for _, ch := range pending {
			<-ch
		}
		fn(res)
		return
	}
	h.bus.On(eventExit, func(args ...any) error {
		fn(args[0].(Result))
		return nil
	})
	h.exitMu.Unlock()
}

// chunkListener hands every callback its own copy, so one callback may keep
// or modify a chunk without affecting the next.
func chunkListener(fn func(Chunk)) events.Listener {
	return func(args ...any) error {
		c := args[0].(Chunk)
		fn(append(Chunk(nil), c...))
		return nil
	}
}

// Wait switches both streams to flowing and blocks until the process has
// exited and every chunk has been dispatched.
func (h *Handle) Wait() Result {
	h.openStreams()
	<-h.done
	<-h.stdout.drained
	<-h.stderr.drained

	h.exitMu.Lock()
	defer h.exitMu.Unlock()
	return h.result
}

// Done returns a channel closed when the handle is finished. Streams that
// were paused at exit may still deliver chunks afterwards.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Kill sends SIGKILL to the process group.
func (h *Handle) Kill() error {
	return h.signal(unix.SIGKILL)
}

// Terminate sends SIGTERM to the process group, then SIGKILL if the
// process has not finished within timeout.
func (h *Handle) Terminate(timeout time.Duration) error {
	if err := h.signal(unix.SIGTERM); err != nil {
		return err
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		h.logger.Warn("force_killing_process",
			"command", h.command.String(),
			"pid", h.Pid(),
		)
		if err := h.signal(unix.SIGKILL); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
		return errors.New("process did not exit gracefully")
	}
}

// signal delivers sig to the child's process group, falling back to the
// process itself.
func (h *Handle) signal(sig unix.Signal) error {
	select {
	case <-h.done:
		return ErrNotRunning
	default:
	}

	h.stateMu.Lock()
	h.killed = true
	h.stateMu.Unlock()

	// Stop holding output back so the readers can reach EOF.
	h.openStreams()

	pid := h.cmd.Process.Pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		if err := unix.Kill(-pgid, sig); err == nil || !errors.Is(err, unix.ESRCH) {
			return err
		}
		return ErrNotRunning
	}
	if err := h.cmd.Process.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return err
	}
	return nil
}

// cancel is installed as exec.Cmd.Cancel. It runs when the spawn context is
// done and kills the group the same way Kill does.
func (h *Handle) cancel() error {
	h.logger.Debug("process_context_cancelled",
		"command", h.command.String(),
		"pid", h.cmd.Process.Pid,
	)
	if err := h.signal(unix.SIGKILL); err != nil {
		if errors.Is(err, ErrNotRunning) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

// Pid returns the process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Command returns the command that was spawned.
func (h *Handle) Command() Command {
	return h.command
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.stateMu.Lock()
	h.state = s
	h.stateMu.Unlock()
}

// Uptime returns the time since start while running, or the total run time
// once finished.
func (h *Handle) Uptime() time.Duration {
	h.exitMu.Lock()
	defer h.exitMu.Unlock()
	if h.finished {
		return h.result.Uptime()
	}
	return time.Since(h.startTime)
}

// Stats returns the pipeline counters for stdout and stderr.
func (h *Handle) Stats() (stdout, stderr stream.Stats) {
	return h.stdout.pipeline.Stats(), h.stderr.pipeline.Stats()
}
