// Package relay runs one command and republishes its output and lifecycle
// on an event bus. Sinks (terminal output, line logger, metrics, dashboard
// tail) are listeners on that bus.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-proc-relay/internal/config"
	"github.com/randomizedcoder/go-proc-relay/internal/events"
	"github.com/randomizedcoder/go-proc-relay/internal/logging"
	"github.com/randomizedcoder/go-proc-relay/internal/metrics"
	"github.com/randomizedcoder/go-proc-relay/internal/process"
	"github.com/randomizedcoder/go-proc-relay/internal/timeseries"
	"github.com/randomizedcoder/go-proc-relay/internal/tui"
)

// Event names on the relay bus.
const (
	EventStart  = "start"  // *process.Handle
	EventStdout = "stdout" // []byte
	EventStderr = "stderr" // []byte
	EventError  = "error"  // error
	EventExit   = "exit"   // process.Result
)

// Exit statuses that do not come from the child.
const (
	ExitFailure     = 1
	ExitSpawnFailed = 127
)

// MetricsPrefix selects the relay's own families in snapshot dumps.
const MetricsPrefix = metrics.Namespace + "_"

// sampleInterval is how often throughput and quantiles are refreshed.
const sampleInterval = time.Second

// Options configures a Relay.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	// Stdout and Stderr receive the child's output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin is forwarded to the child when Config.Stdin is set.
	Stdin io.Reader

	// Registry receives the relay's metrics. Nil uses the default registry.
	Registry *prometheus.Registry
}

// Relay runs a single command.
type Relay struct {
	config *config.Config
	logger *slog.Logger

	bus       *events.Emitter
	spawner   *process.Spawner
	collector *metrics.Collector
	gatherer  prometheus.Gatherer
	server    *metrics.Server
	tracker   *timeseries.RateTracker
	tail      *tailSink

	stdoutLines *logging.LineLogger
	stderrLines *logging.LineLogger

	mu         sync.Mutex
	handle     *process.Handle
	result     *process.Result
	failedOnce map[string]bool

	samplerStop chan struct{}
	samplerDone chan struct{}
}

// New creates a Relay and attaches its sinks to the bus.
func New(opts Options) *Relay {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer = opts.Registry
		gatherer = opts.Registry
	}

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: opts.Version,
		Command: commandLabel(cfg.Command),
		PTY:     cfg.PTY,
	}, registerer)

	var stdin io.Reader
	if cfg.Stdin {
		stdin = opts.Stdin
	}

	r := &Relay{
		config:    cfg,
		logger:    logger,
		bus:       events.New(events.WithLogger(logger), events.WithObserver(collector)),
		collector: collector,
		gatherer:  gatherer,
		tracker:   timeseries.NewRateTracker(),
		spawner: process.NewSpawner(process.Config{
			Logger:     logger,
			Observer:   collector,
			Dir:        cfg.Dir,
			Env:        cfg.Env,
			Stdin:      stdin,
			ChunkSize:  cfg.ChunkSize,
			BufferSize: cfg.BufferSize,
			PTY:        cfg.PTY,
		}),
		failedOnce:  make(map[string]bool),
		samplerStop: make(chan struct{}),
		samplerDone: make(chan struct{}),
	}

	if cfg.MetricsEnabled() {
		r.server = metrics.NewServerWithGatherer(cfg.MetricsAddr, gatherer, logger)
	}

	r.attachSinks(opts)
	return r
}

// attachSinks subscribes every sink. Observers go first so a failing
// terminal writer does not hide chunks from them.
func (r *Relay) attachSinks(opts Options) {
	cfg := r.config

	attachLifecycleLog(r.bus, r.logger)
	r.stdoutLines = attachLineLogger(r.bus, EventStdout, r.logger, cfg.Verbose)
	r.stderrLines = attachLineLogger(r.bus, EventStderr, r.logger, cfg.Verbose)
	attachRateTracker(r.bus, r.tracker, EventStdout, EventStderr)

	if cfg.TUIEnabled {
		r.tail = newTailSink(tui.DefaultTailLines)
		r.tail.attach(r.bus, EventStdout, EventStderr)
	}

	if !cfg.Quiet {
		if opts.Stdout != nil {
			attachOutput(r.bus, EventStdout, opts.Stdout, cfg.Prefix)
		}
		if opts.Stderr != nil {
			attachOutput(r.bus, EventStderr, opts.Stderr, cfg.Prefix)
		}
	}
}

// Bus returns the relay's event bus. Listeners added before Start see
// every event.
func (r *Relay) Bus() *events.Emitter {
	return r.bus
}

// Metrics returns the metrics collector.
func (r *Relay) Metrics() *metrics.Collector {
	return r.collector
}

// Start spawns the command and begins relaying. It returns a
// *process.SpawnError if the command cannot be started.
func (r *Relay) Start(ctx context.Context) error {
	if r.server != nil {
		if err := r.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Cancellation is handled by Run with a graceful Terminate.
	h, err := r.spawner.Spawn(context.WithoutCancel(ctx), process.NewCommand(r.config.Command, r.config.Args...))
	if err != nil {
		r.shutdownServer()
		return err
	}

	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()

	r.publish(EventStart, h)
	h.OnError(func(err error) {
		r.publish(EventError, err)
	})

	// Registering the chunk callbacks switches both streams to flowing.
	h.OnStdout(func(c process.Chunk) {
		r.publish(EventStdout, []byte(c))
	})
	h.OnStderr(func(c process.Chunk) {
		r.publish(EventStderr, []byte(c))
	})

	// Registered last: exit then follows every chunk even when the child
	// finished before the streams were opened.
	h.OnExit(func(res process.Result) {
		r.mu.Lock()
		r.result = &res
		r.mu.Unlock()
		r.publish(EventExit, res)
	})

	go r.sampleLoop()

	if r.server != nil {
		r.server.SetReady(true)
	}
	return nil
}

// publish emits on the bus. The first failure per event is logged; later
// ones are only counted by the collector.
func (r *Relay) publish(event string, payload any) {
	err := r.bus.Publish(event, payload)
	if err == nil {
		return
	}

	r.mu.Lock()
	first := !r.failedOnce[event]
	r.failedOnce[event] = true
	r.mu.Unlock()

	if first {
		r.logger.Warn("relay_listener_failed", "event", event, "error", err)
	}
}

// Run starts the command and blocks until it exits. SIGINT, SIGTERM or
// cancelling ctx terminate the child. The return value is the status the
// CLI should exit with.
func (r *Relay) Run(ctx context.Context) int {
	if err := r.Start(ctx); err != nil {
		r.logger.Error("relay_start_failed", "error", err)
		var spawnErr *process.SpawnError
		if errors.As(err, &spawnErr) {
			return ExitSpawnFailed
		}
		return ExitFailure
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	h := r.Handle()
	select {
	case <-h.Done():
	case sig := <-sigCh:
		r.logger.Info("received_signal", "signal", sig.String())
		r.stop(h)
	case <-ctx.Done():
		r.logger.Info("context_cancelled")
		r.stop(h)
	}

	res := h.Wait()
	r.finish()
	return res.ExitCode
}

func (r *Relay) stop(h *process.Handle) {
	if err := h.Terminate(r.config.StopTimeout); err != nil && !errors.Is(err, process.ErrNotRunning) {
		r.logger.Warn("terminate_failed", "pid", h.Pid(), "error", err)
	}
}

// finish stops background work, writes the metrics dump and logs the
// summary. Call once after the handle is done.
func (r *Relay) finish() {
	close(r.samplerStop)
	<-r.samplerDone
	r.sample()

	if r.config.MetricsDump != "" {
		if err := metrics.DumpFile(r.config.MetricsDump, r.gatherer, MetricsPrefix); err != nil {
			r.logger.Warn("metrics_dump_failed", "path", r.config.MetricsDump, "error", err)
		} else {
			r.logger.Info("metrics_dumped", "path", r.config.MetricsDump)
		}
	}

	r.shutdownServer()
	r.logSummary()
}

func (r *Relay) shutdownServer() {
	if r.server == nil {
		return
	}
	r.server.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Shutdown(ctx); err != nil {
		r.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// sampleLoop refreshes throughput and quantile gauges until finish.
func (r *Relay) sampleLoop() {
	defer close(r.samplerDone)

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sample()
		case <-r.samplerStop:
			return
		}
	}
}

func (r *Relay) sample() {
	r.tracker.Sample()
	rates := r.tracker.Stats()
	r.collector.RecordThroughput("1s", rates.Bytes1s)
	r.collector.RecordThroughput("10s", rates.Bytes10s)
	r.collector.RecordThroughput("60s", rates.Bytes60s)
	r.collector.UpdateQuantiles()

	if h := r.Handle(); h != nil {
		stdout, stderr := h.Stats()
		r.collector.RecordPipeline(stdout)
		r.collector.RecordPipeline(stderr)
	}
	if r.tail != nil {
		r.collector.RecordPipeline(r.tail.pipeline.Stats())
	}
}

// Handle returns the running handle, or nil before Start.
func (r *Relay) Handle() *process.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Result returns the exit result once the process has finished.
func (r *Relay) Result() (process.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return process.Result{}, false
	}
	return *r.result, true
}

// Snapshot implements tui.Source.
func (r *Relay) Snapshot(tailLines int) tui.Snapshot {
	snap := tui.Snapshot{
		Command: strings.Join(r.config.CommandLine(), " "),
		State:   process.StateStarting,
		Rates:   r.tracker.Stats(),
		Summary: r.collector.GenerateSummary(),
	}

	if h := r.Handle(); h != nil {
		snap.Pid = h.Pid()
		snap.State = h.State()
		snap.Uptime = h.Uptime()
		snap.Stdout, snap.Stderr = h.Stats()
	}
	if res, ok := r.Result(); ok {
		snap.ExitCode = res.ExitCode
	}
	if r.tail != nil {
		snap.Tail = r.tail.pipeline.Stats()
		snap.Lines = r.tail.tail.Lines(tailLines)
	}
	return snap
}

var _ tui.Source = (*Relay)(nil)

// commandLabel is the executable's base name, used as a metrics label.
func commandLabel(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
