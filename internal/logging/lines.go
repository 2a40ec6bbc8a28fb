package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

const (
	// MaxLineLength is the maximum length of a logged line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per stream.
	MaxBufferedLines = 100
)

// LineLogger turns a child's output chunks into log records.
// It splits chunks into lines, keeps the most recent lines for the exit
// summary and logs each line at a level chosen from its content.
type LineLogger struct {
	streamName string
	logger     *slog.Logger
	verbose    bool
	splitter   *stream.LineSplitter

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
	mu     sync.Mutex
}

// NewLineLogger creates a LineLogger for one output stream ("stdout" or "stderr").
func NewLineLogger(streamName string, logger *slog.Logger, verbose bool) *LineLogger {
	l := &LineLogger{
		streamName: streamName,
		logger:     logger,
		verbose:    verbose,
		buffer:     make([]string, MaxBufferedLines),
	}
	l.splitter = stream.NewLineSplitter(l.HandleLine)
	return l
}

// HandleChunk consumes one output chunk. Partial lines are held until the
// next chunk or Flush.
func (l *LineLogger) HandleChunk(chunk []byte) {
	_, _ = l.splitter.Write(chunk)
}

// Flush emits any trailing partial line. Call it once the stream has ended.
func (l *LineLogger) Flush() {
	l.splitter.Flush()
}

// HandleLine processes a single line of output.
func (l *LineLogger) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	l.mu.Lock()
	l.buffer[l.bufIdx] = line
	l.bufIdx = (l.bufIdx + 1) % MaxBufferedLines
	l.total++
	l.mu.Unlock()

	l.logLine(line)
}

// logLine logs the line at a level based on content.
func (l *LineLogger) logLine(line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !l.verbose && level == slog.LevelDebug {
		return
	}

	l.logger.Log(context.Background(), level, "child_output",
		"stream", l.streamName,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "panic:") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "[error]") ||
		strings.Contains(lower, "error") && strings.Contains(lower, "failed") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "connection refused") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "[warning]") ||
		strings.Contains(lower, "warn") ||
		strings.Contains(lower, "deprecated") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (l *LineLogger) RecentLines(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > l.total {
		n = l.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, l.buffer[idx])
	}
	return lines
}

// TotalLines returns the number of lines handled so far.
func (l *LineLogger) TotalLines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// ErrorPatterns are common failure markers counted for the exit summary.
var ErrorPatterns = []string{
	"panic:",
	"fatal",
	"error",
	"Permission denied",
	"No such file or directory",
	"Connection refused",
	"timeout",
}

// CountErrors counts occurrences of error patterns in the buffered lines.
func (l *LineLogger) CountErrors() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range l.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
