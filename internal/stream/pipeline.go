// Package stream moves child-process output from an OS pipe to consumers.
//
// Two-Layer Architecture:
//
//	Layer 1 (Reader):     Reads chunks from the pipe into a bounded channel
//	Layer 2 (Dispatcher): Consumes chunks at its own pace and hands them on
//
// A Pipeline is lossless by default: when the channel is full the reader blocks,
// and the backpressure reaches the child through the pipe. Lossy pipelines drop
// instead, for consumers that must never slow the child down.
package stream

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

const (
	// DefaultChunkSize is the read buffer size for one Read on the pipe.
	DefaultChunkSize = 64 * 1024

	// DefaultBufferSize is the number of chunks queued between layers.
	DefaultBufferSize = 64
)

// Mode selects what the reader does when the channel is full.
type Mode int

const (
	// Lossless blocks the reader until the dispatcher catches up.
	Lossless Mode = iota

	// Lossy drops the chunk and counts the drop.
	Lossy
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Lossless:
		return "lossless"
	case Lossy:
		return "lossy"
	default:
		return "unknown"
	}
}

// Pipeline is a bounded chunk queue between a pipe reader and a dispatcher.
type Pipeline struct {
	name      string // "stdout" or "stderr"
	mode      Mode
	chunkSize int

	chunkChan chan []byte
	closeOnce sync.Once

	// Pipeline health metrics (atomic for concurrent access)
	chunksRead       atomic.Int64
	bytesRead        atomic.Int64
	chunksDropped    atomic.Int64
	chunksDispatched atomic.Int64

	errMu   sync.Mutex
	readErr error
}

// Config holds Pipeline parameters. Zero values select defaults.
type Config struct {
	Name       string
	Mode       Mode
	ChunkSize  int
	BufferSize int
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config) *Pipeline {
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	bufferSize := cfg.BufferSize
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}

	return &Pipeline{
		name:      cfg.Name,
		mode:      cfg.Mode,
		chunkSize: chunkSize,
		chunkChan: make(chan []byte, bufferSize),
	}
}

// RunReader is Layer 1: reads chunks until EOF or a read error.
//
// MUST run in a dedicated goroutine. Closes the channel on exit. Each chunk
// is a fresh copy, so consumers may keep it. Returns the read error, if any;
// EOF and the EIO a pty master reports after the child exits count as a
// clean end of stream.
func (p *Pipeline) RunReader(r io.Reader) error {
	defer p.CloseChannel()

	buf := make([]byte, p.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.Feed(chunk)
		}
		if err != nil {
			if isEndOfStream(err) {
				return nil
			}
			p.errMu.Lock()
			p.readErr = err
			p.errMu.Unlock()
			return err
		}
	}
}

// Feed queues a chunk from an external source.
// Returns false if the chunk was dropped (lossy mode, channel full).
func (p *Pipeline) Feed(chunk []byte) bool {
	p.chunksRead.Add(1)
	p.bytesRead.Add(int64(len(chunk)))

	if p.mode == Lossless {
		p.chunkChan <- chunk
		return true
	}

	select {
	case p.chunkChan <- chunk:
		return true
	default:
		p.chunksDropped.Add(1)
		return false
	}
}

// CloseChannel closes the chunk channel, signalling the dispatcher to stop.
// Safe to call multiple times.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.chunkChan)
	})
}

// RunDispatcher is Layer 2: hands each chunk to fn in order.
//
// MUST run in a dedicated goroutine. Returns when the channel is closed and drained.
func (p *Pipeline) RunDispatcher(fn func(chunk []byte)) {
	for chunk := range p.chunkChan {
		fn(chunk)
		p.chunksDispatched.Add(1)
	}
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Name             string
	ChunksRead       int64
	BytesRead        int64
	ChunksDropped    int64
	ChunksDispatched int64

	// Queued chunks waiting for the dispatcher, out of Capacity.
	Queued   int
	Capacity int
}

// DropRate returns the fraction of chunks dropped (0.0 to 1.0).
func (s Stats) DropRate() float64 {
	if s.ChunksRead == 0 {
		return 0
	}
	return float64(s.ChunksDropped) / float64(s.ChunksRead)
}

// Fill returns how full the queue is (0.0 to 1.0).
func (s Stats) Fill() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Queued) / float64(s.Capacity)
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Name:             p.name,
		Queued:           len(p.chunkChan),
		Capacity:         cap(p.chunkChan),
		ChunksRead:       p.chunksRead.Load(),
		BytesRead:        p.bytesRead.Load(),
		ChunksDropped:    p.chunksDropped.Load(),
		ChunksDispatched: p.chunksDispatched.Load(),
	}
}

// Err returns the read error that ended RunReader, or nil.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.readErr
}

func isEndOfStream(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return true
	}
	// Linux pty masters return EIO once the slave side is closed.
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.EIO) {
		return true
	}
	return false
}
