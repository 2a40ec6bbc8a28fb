// Package config provides configuration management for go-proc-relay.
package config

import (
	"time"

	"github.com/randomizedcoder/go-proc-relay/internal/stream"
)

// Config holds all configuration options for the relay.
type Config struct {
	// Child process
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	Dir     string   `json:"dir" yaml:"dir"`
	Env     []string `json:"env" yaml:"env"` // KEY=VALUE, appended to the inherited environment
	Stdin   bool     `json:"stdin" yaml:"stdin"`
	PTY     bool     `json:"pty" yaml:"pty"`

	// Streaming
	ChunkSize   int           `json:"chunk_size" yaml:"chunk_size"`
	BufferSize  int           `json:"buffer_size" yaml:"buffer_size"`
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// Output
	Prefix string `json:"prefix" yaml:"prefix"`
	Quiet  bool   `json:"quiet" yaml:"quiet"`

	// Observability
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"` // "" = disabled
	MetricsDump string `json:"metrics_dump" yaml:"metrics_dump"`
	TUIEnabled  bool   `json:"tui" yaml:"tui"`
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`

	// Command-line only
	ConfigFile  string `json:"-" yaml:"-"`
	DumpConfig  string `json:"-" yaml:"-"`
	ShowVersion bool   `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Streaming
		ChunkSize:   stream.DefaultChunkSize,
		BufferSize:  stream.DefaultBufferSize,
		StopTimeout: 5 * time.Second,

		// Observability
		MetricsAddr: "",
		LogFormat:   "text",
		LogLevel:    "info",
	}
}

// CommandLine returns the command followed by its arguments.
func (c *Config) CommandLine() []string {
	if c.Command == "" {
		return nil
	}
	return append([]string{c.Command}, c.Args...)
}

// MetricsEnabled reports whether the metrics HTTP server should run.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}
