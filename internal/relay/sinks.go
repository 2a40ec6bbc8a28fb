package relay

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/randomizedcoder/go-proc-relay/internal/events"
	"github.com/randomizedcoder/go-proc-relay/internal/logging"
	"github.com/randomizedcoder/go-proc-relay/internal/process"
	"github.com/randomizedcoder/go-proc-relay/internal/stream"
	"github.com/randomizedcoder/go-proc-relay/internal/timeseries"
	"github.com/randomizedcoder/go-proc-relay/internal/tui"
)

// chunkPayload extracts the chunk published on a stream topic.
func chunkPayload(payload any) ([]byte, error) {
	chunk, ok := payload.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
	return chunk, nil
}

// =============================================================================
// Output writer
// =============================================================================

// outputWriter copies chunks to a terminal or file, each preceded by prefix.
type outputWriter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix []byte
}

func newOutputWriter(w io.Writer, prefix string) *outputWriter {
	return &outputWriter{w: w, prefix: []byte(prefix)}
}

func (o *outputWriter) handle(payload any) error {
	chunk, err := chunkPayload(payload)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.prefix) > 0 {
		if _, err := o.w.Write(o.prefix); err != nil {
			return fmt.Errorf("write prefix: %w", err)
		}
	}
	if _, err := o.w.Write(chunk); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// attachOutput relays topic to w.
func attachOutput(bus events.Publisher, topic string, w io.Writer, prefix string) {
	bus.Subscribe(topic, newOutputWriter(w, prefix).handle)
}

// =============================================================================
// Line logger
// =============================================================================

// attachLineLogger logs every line of topic and flushes on exit.
func attachLineLogger(bus events.Publisher, topic string, logger *slog.Logger, verbose bool) *logging.LineLogger {
	ll := logging.NewLineLogger(topic, logger, verbose)
	bus.Subscribe(topic, func(payload any) error {
		chunk, err := chunkPayload(payload)
		if err != nil {
			return err
		}
		ll.HandleChunk(chunk)
		return nil
	})
	bus.Subscribe(EventExit, func(any) error {
		ll.Flush()
		return nil
	})
	return ll
}

// =============================================================================
// Throughput
// =============================================================================

// attachRateTracker counts bytes of every listed topic.
func attachRateTracker(bus events.Publisher, tracker *timeseries.RateTracker, topics ...string) {
	for _, topic := range topics {
		bus.Subscribe(topic, func(payload any) error {
			chunk, err := chunkPayload(payload)
			if err != nil {
				return err
			}
			tracker.AddChunk(len(chunk))
			return nil
		})
	}
}

// =============================================================================
// Dashboard tail
// =============================================================================

// tailSink feeds the dashboard tail through a lossy pipeline so a slow
// terminal never holds back the child.
type tailSink struct {
	tail     *tui.Tail
	pipeline *stream.Pipeline
	done     chan struct{}
}

func newTailSink(lines int) *tailSink {
	s := &tailSink{
		tail: tui.NewTail(lines),
		pipeline: stream.NewPipeline(stream.Config{
			Name:       "tail",
			Mode:       stream.Lossy,
			BufferSize: 256,
		}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.pipeline.RunDispatcher(func(chunk []byte) {
			_, _ = s.tail.Write(chunk)
		})
	}()
	return s
}

func (s *tailSink) attach(bus events.Publisher, topics ...string) {
	for _, topic := range topics {
		bus.Subscribe(topic, func(payload any) error {
			chunk, err := chunkPayload(payload)
			if err != nil {
				return err
			}
			s.pipeline.Feed(chunk)
			return nil
		})
	}
	// Exit is published after the last chunk, so nothing is fed after close.
	bus.Subscribe(EventExit, func(any) error {
		s.pipeline.CloseChannel()
		<-s.done
		s.tail.Flush()
		return nil
	})
}

// =============================================================================
// Lifecycle logging
// =============================================================================

func attachLifecycleLog(bus events.Publisher, logger *slog.Logger) {
	bus.Subscribe(EventStart, func(payload any) error {
		if h, ok := payload.(*process.Handle); ok {
			logger.Debug("relay_started", "pid", h.Pid(), "command", h.Command().String())
		}
		return nil
	})
	bus.Subscribe(EventError, func(payload any) error {
		logger.Warn("relay_stream_error", "error", payload)
		return nil
	})
	bus.Subscribe(EventExit, func(payload any) error {
		if res, ok := payload.(process.Result); ok {
			logger.Debug("relay_exited", "pid", res.Pid, "exit_code", res.ExitCode)
		}
		return nil
	})
}
