// Package metrics provides Prometheus metrics for go-proc-relay.
//
// The Collector observes the spawned process (process.Observer) and the
// relay's event emitter (events.Observer). Label cardinality is bounded:
// stream is stdout or stderr, event is one of the relay's event names.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

// Namespace prefixes every metric name.
const Namespace = "proc_relay"

// quantiles reported from the t-digests.
var quantiles = []struct {
	q     float64
	label string
}{
	{0.50, "0.5"},
	{0.95, "0.95"},
	{0.99, "0.99"},
}

// Collector manages all Prometheus metrics for the relay.
type Collector struct {
	// --- Process lifecycle ---
	info           *prometheus.GaugeVec
	processStarts  prometheus.Counter
	processExits   *prometheus.CounterVec
	processRunning prometheus.Gauge
	processUptime  prometheus.Histogram

	// --- Output ---
	chunksTotal       *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
	chunkSizeBytes    *prometheus.HistogramVec
	chunkSizeQuantile *prometheus.GaugeVec
	throughput        *prometheus.GaugeVec
	chunksDropped     *prometheus.GaugeVec

	// --- Events ---
	emitsTotal          *prometheus.CounterVec
	listenerErrorsTotal *prometheus.CounterVec
	emitDuration        *prometheus.HistogramVec
	emitLatencyQuantile *prometheus.GaugeVec

	startTime time.Time

	// Internal tracking for the summary
	mu             sync.Mutex
	totalStarts    int64
	exitCodes      map[int]int64
	uptimes        []time.Duration
	bytesByStream  map[string]int64
	chunksByStream map[string]int64
	emits          int64
	listenerErrors int64
	chunkDigest    *tdigest.TDigest // chunk sizes in bytes
	emitDigest     *tdigest.TDigest // emit latency in seconds
	chunkSamples   int64
	emitSamples    int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Command string // bounded label, normally the executable's base name
	PTY     bool
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "info",
				Help:      "Information about the relay (value always 1)",
			},
			[]string{"version", "command", "pty"},
		),
		processStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "process_starts_total",
			Help:      "Total processes spawned",
		}),
		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "process_exits_total",
				Help:      "Process exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		processRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "process_running",
			Help:      "1 while the child process is running",
		}),
		processUptime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "process_uptime_seconds",
			Help:      "Process run time at exit",
			Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300, 1800, 3600},
		}),

		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "chunks_total",
				Help:      "Output chunks dispatched",
			},
			[]string{"stream"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "bytes_total",
				Help:      "Output bytes dispatched",
			},
			[]string{"stream"},
		),
		chunkSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "chunk_size_bytes",
				Help:      "Size of dispatched output chunks",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 7), // 16B .. 64KiB
			},
			[]string{"stream"},
		),
		chunkSizeQuantile: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "chunk_size_quantile_bytes",
				Help:      "Chunk size quantiles estimated with a t-digest",
			},
			[]string{"quantile"},
		),
		throughput: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "throughput_bytes_per_second",
				Help:      "Output throughput over a rolling window",
			},
			[]string{"window"},
		),
		chunksDropped: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "pipeline_chunks_dropped",
				Help:      "Chunks dropped by lossy pipelines",
			},
			[]string{"pipeline"},
		),

		emitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_emitted_total",
				Help:      "Emitter emissions by event name",
			},
			[]string{"event"},
		),
		listenerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "listener_errors_total",
				Help:      "Emissions halted by a failing listener",
			},
			[]string{"event"},
		),
		emitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "emit_duration_seconds",
				Help:      "Time spent running all listeners of one emission",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"event"},
		),
		emitLatencyQuantile: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "emit_duration_quantile_seconds",
				Help:      "Emission latency quantiles estimated with a t-digest",
			},
			[]string{"quantile"},
		),

		startTime:      time.Now(),
		exitCodes:      make(map[int]int64),
		bytesByStream:  make(map[string]int64),
		chunksByStream: make(map[string]int64),
		chunkDigest:    tdigest.NewWithCompression(100),
		emitDigest:     tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.info,
		c.processStarts,
		c.processExits,
		c.processRunning,
		c.processUptime,

		c.chunksTotal,
		c.bytesTotal,
		c.chunkSizeBytes,
		c.chunkSizeQuantile,
		c.throughput,
		c.chunksDropped,

		c.emitsTotal,
		c.listenerErrorsTotal,
		c.emitDuration,
		c.emitLatencyQuantile,
	)

	pty := "false"
	if cfg.PTY {
		pty = "true"
	}
	c.info.WithLabelValues(cfg.Version, cfg.Command, pty).Set(1)

	return c
}

// =============================================================================
// process.Observer
// =============================================================================

// ProcessStarted records a process start.
func (c *Collector) ProcessStarted(command string, pid int) {
	c.processStarts.Inc()
	c.processRunning.Set(1)

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// ChunkRead records one dispatched output chunk.
func (c *Collector) ChunkRead(streamName string, n int) {
	c.chunksTotal.WithLabelValues(streamName).Inc()
	c.bytesTotal.WithLabelValues(streamName).Add(float64(n))
	c.chunkSizeBytes.WithLabelValues(streamName).Observe(float64(n))

	c.mu.Lock()
	c.chunksByStream[streamName]++
	c.bytesByStream[streamName] += int64(n)
	c.chunkDigest.Add(float64(n), 1)
	c.chunkSamples++
	c.mu.Unlock()
}

// ProcessExited records a process exit.
func (c *Collector) ProcessExited(command string, exitCode int, uptime time.Duration) {
	c.processExits.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.processRunning.Set(0)
	c.processUptime.Observe(uptime.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimes = append(c.uptimes, uptime)
	c.mu.Unlock()
}

// ExitCategory buckets an exit code for the exits counter.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// events.Observer
// =============================================================================

// Emitted records one emission.
func (c *Collector) Emitted(name string, listeners int, took time.Duration, err error) {
	c.emitsTotal.WithLabelValues(name).Inc()
	c.emitDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		c.listenerErrorsTotal.WithLabelValues(name).Inc()
	}

	c.mu.Lock()
	c.emits++
	if err != nil {
		c.listenerErrors++
	}
	c.emitDigest.Add(took.Seconds(), 1)
	c.emitSamples++
	c.mu.Unlock()
}

// =============================================================================
// Periodic updates
// =============================================================================

// RecordThroughput publishes rolling throughput values, keyed by window
// label (e.g. "1s", "10s").
func (c *Collector) RecordThroughput(window string, bytesPerSec float64) {
	c.throughput.WithLabelValues(window).Set(bytesPerSec)
}

// RecordPipeline publishes a pipeline's drop counter.
func (c *Collector) RecordPipeline(s stream.Stats) {
	c.chunksDropped.WithLabelValues(s.Name).Set(float64(s.ChunksDropped))
}

// UpdateQuantiles refreshes the t-digest quantile gauges.
func (c *Collector) UpdateQuantiles() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chunkSamples > 0 {
		for _, q := range quantiles {
			c.chunkSizeQuantile.WithLabelValues(q.label).Set(c.chunkDigest.Quantile(q.q))
		}
	}
	if c.emitSamples > 0 {
		for _, q := range quantiles {
			c.emitLatencyQuantile.WithLabelValues(q.label).Set(c.emitDigest.Quantile(q.q))
		}
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for the exit summary and the dashboard.
type Summary struct {
	Duration       time.Duration
	TotalStarts    int64
	ExitCodes      map[int]int64
	BytesByStream  map[string]int64
	ChunksByStream map[string]int64
	Emits          int64
	ListenerErrors int64

	ChunkSizeP50 float64
	ChunkSizeP99 float64
	EmitP50      time.Duration
	EmitP99      time.Duration
	UptimeMax    time.Duration
}

// TotalBytes sums bytes over all streams.
func (s *Summary) TotalBytes() int64 {
	var n int64
	for _, b := range s.BytesByStream {
		n += b
	}
	return n
}

// GenerateSummary creates a summary of the run so far.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:       time.Since(c.startTime),
		TotalStarts:    c.totalStarts,
		ExitCodes:      make(map[int]int64, len(c.exitCodes)),
		BytesByStream:  make(map[string]int64, len(c.bytesByStream)),
		ChunksByStream: make(map[string]int64, len(c.chunksByStream)),
		Emits:          c.emits,
		ListenerErrors: c.listenerErrors,
	}

	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	for name, n := range c.bytesByStream {
		s.BytesByStream[name] = n
	}
	for name, n := range c.chunksByStream {
		s.ChunksByStream[name] = n
	}
	for _, u := range c.uptimes {
		if u > s.UptimeMax {
			s.UptimeMax = u
		}
	}

	if c.chunkSamples > 0 {
		s.ChunkSizeP50 = c.chunkDigest.Quantile(0.50)
		s.ChunkSizeP99 = c.chunkDigest.Quantile(0.99)
	}
	if c.emitSamples > 0 {
		s.EmitP50 = secondsToDuration(c.emitDigest.Quantile(0.50))
		s.EmitP99 = secondsToDuration(c.emitDigest.Quantile(0.99))
	}

	return s
}

// TotalStarts returns the total number of process starts.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
