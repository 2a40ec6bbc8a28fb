package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/randomizedcoder/go-proc-relay/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	// MaxChunkSize bounds -chunk-size; one chunk is allocated per read.
	MaxChunkSize = 16 * 1024 * 1024

	// MaxBufferSize bounds -buffer.
	MaxBufferSize = 65536
)

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	// A command is required unless only printing the version
	if cfg.Command == "" && !cfg.ShowVersion && cfg.DumpConfig == "" {
		errs = append(errs, ValidationError{
			Field:   "command",
			Message: "a command to run is required (go-proc-relay [flags] -- <command> [args...])",
		})
	}

	if cfg.ChunkSize < 1 || cfg.ChunkSize > MaxChunkSize {
		errs = append(errs, ValidationError{
			Field:   "chunk_size",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxChunkSize, cfg.ChunkSize),
		})
	}

	if cfg.BufferSize < 1 || cfg.BufferSize > MaxBufferSize {
		errs = append(errs, ValidationError{
			Field:   "buffer_size",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxBufferSize, cfg.BufferSize),
		})
	}

	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	} else if cfg.StopTimeout > 5*time.Minute {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: fmt.Sprintf("must be at most 5m (got %v)", cfg.StopTimeout),
		})
	}

	for _, kv := range cfg.Env {
		if err := validateEnv(kv); err != nil {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: err.Error(),
			})
		}
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// The dashboard reads keys from stdin.
	if cfg.TUIEnabled && cfg.Stdin {
		errs = append(errs, ValidationError{
			Field:   "stdin",
			Message: "-stdin cannot be combined with -tui",
		})
	}

	if !logging.ValidFormat(cfg.LogFormat) {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateEnv checks a KEY=VALUE environment entry.
func validateEnv(kv string) error {
	key, _, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("%q must be KEY=VALUE", kv)
	}
	if key == "" {
		return fmt.Errorf("%q has an empty key", kv)
	}
	return nil
}

// validateAddr checks a host:port listen address.
func validateAddr(addr string) error {
	if strings.Contains(addr, "://") {
		return errors.New("must be host:port, not a URL")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}
