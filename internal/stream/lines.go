package stream

import (
	"bytes"
	"sync"
)

// MaxLineLength is the longest partial line held before it is flushed as-is.
const MaxLineLength = 64 * 1024

// LineSplitter reassembles lines from arbitrary chunk boundaries.
// Trailing "\r" is stripped so pty output splits like pipe output.
type LineSplitter struct {
	mu      sync.Mutex
	partial []byte
	emit    func(line string)
}

// NewLineSplitter creates a splitter that calls emit once per complete line.
func NewLineSplitter(emit func(line string)) *LineSplitter {
	return &LineSplitter{emit: emit}
}

// Write consumes a chunk. It never fails; the signature matches io.Writer.
func (s *LineSplitter) Write(chunk []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := chunk
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			s.partial = append(s.partial, data...)
			if len(s.partial) >= MaxLineLength {
				s.flushLocked()
			}
			break
		}
		s.partial = append(s.partial, data[:i]...)
		s.flushLocked()
		data = data[i+1:]
	}
	return len(chunk), nil
}

// Flush emits any buffered partial line. Call at end of stream.
func (s *LineSplitter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.partial) > 0 {
		s.flushLocked()
	}
}

func (s *LineSplitter) flushLocked() {
	line := bytes.TrimSuffix(s.partial, []byte("\r"))
	s.emit(string(line))
	s.partial = s.partial[:0]
}
