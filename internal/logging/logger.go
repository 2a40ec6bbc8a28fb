// Package logging builds the slog loggers used across go-proc-relay.
//
// Diagnostics always go to stderr; stdout belongs to the relayed child.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Accepted values for the -log-format flag.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger returns the CLI logger. Unknown formats fall back to JSON and
// unknown levels to info. verbose forces debug, which also records the
// source location of each call.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}
	return slog.New(newHandler(os.Stderr, format, FormatJSON, opts))
}

// NewLoggerWithWriter is NewLogger for an arbitrary writer, falling back to
// text. Used by tests to capture output.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(newHandler(w, format, FormatText, opts))
}

func newHandler(w io.Writer, format, fallback string, opts *slog.HandlerOptions) slog.Handler {
	f := strings.ToLower(format)
	if !ValidFormat(f) {
		f = fallback
	}
	if f == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ValidFormat reports whether format names a supported handler.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatJSON, FormatText:
		return true
	}
	return false
}

// ValidLevel reports whether level is a known level name.
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToLower(level)]
	return ok
}

func parseLevel(level string) slog.Level {
	if lvl, ok := levels[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
