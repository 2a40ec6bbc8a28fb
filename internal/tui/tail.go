package tui

import (
	"sync"

	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

// DefaultTailLines is the number of output lines kept for the dashboard.
const DefaultTailLines = 200

// Tail keeps the most recent output lines for display.
// Chunks reach it through a lossy pipeline, so a slow terminal never
// blocks the child.
type Tail struct {
	mu       sync.Mutex
	lines    []string
	next     int
	full     bool
	splitter *stream.LineSplitter
}

// NewTail creates a Tail holding up to size lines.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailLines
	}
	t := &Tail{lines: make([]string, size)}
	t.splitter = stream.NewLineSplitter(t.add)
	return t
}

// Write consumes an output chunk. It never fails.
func (t *Tail) Write(chunk []byte) (int, error) {
	return t.splitter.Write(chunk)
}

// Flush commits a trailing partial line.
func (t *Tail) Flush() {
	t.splitter.Flush()
}

func (t *Tail) add(line string) {
	t.mu.Lock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()
}

// Lines returns up to n of the most recent lines, oldest first.
func (t *Tail) Lines(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.next
	if t.full {
		count = len(t.lines)
	}
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	out := make([]string, n)
	start := (t.next - n + len(t.lines)) % len(t.lines)
	for i := range out {
		out[i] = t.lines[(start+i)%len(t.lines)]
	}
	return out
}
