// Package main provides the go-proc-relay CLI entry point.
//
// go-proc-relay runs one command, republishes its output and lifecycle as
// events, and relays the output to the terminal with optional structured
// logging, Prometheus metrics and a live dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-proc-relay/internal/config"
	"github.com/randomizedcoder/go-proc-relay/internal/logging"
	"github.com/randomizedcoder/go-proc-relay/internal/preflight"
	"github.com/randomizedcoder/go-proc-relay/internal/relay"
	"github.com/randomizedcoder/go-proc-relay/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-proc-relay
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Handle version flag early (before flag parsing)
	if len(args) > 0 {
		if arg := args[0]; arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-proc-relay %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(args)
	if err != nil {
		if config.IsHelp(err) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return relay.ExitFailure
	}
	if cfg.ShowVersion {
		fmt.Printf("go-proc-relay %s\n", version)
		return 0
	}

	// The dashboard owns the terminal, so logs are discarded while it runs.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return relay.ExitFailure
	}

	if cfg.DumpConfig != "" {
		if err := config.WriteFile(cfg.DumpConfig, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return relay.ExitFailure
		}
		logger.Info("config_written", "path", cfg.DumpConfig)
		return 0
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Command: cfg.Command,
			Dir:     cfg.Dir,
			PTY:     cfg.PTY,
		})
		if !result.Passed || cfg.Verbose {
			preflight.PrintResults(os.Stderr, result)
		}
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "preflight checks failed (use -skip-preflight to override)")
			return relay.ExitSpawnFailed
		}
	}

	logger.Info("starting",
		"version", version,
		"command", strings.Join(cfg.CommandLine(), " "),
		"pty", cfg.PTY,
		"metrics_addr", cfg.MetricsAddr,
	)

	opts := relay.Options{
		Config:   cfg,
		Logger:   logger,
		Version:  version,
		Stdin:    os.Stdin,
		Registry: newRegistry(),
	}
	if !cfg.TUIEnabled {
		opts.Stdout = os.Stdout
		opts.Stderr = os.Stderr
	}
	r := relay.New(opts)

	if cfg.TUIEnabled {
		return runWithTUI(context.Background(), r, cfg)
	}

	code := r.Run(context.Background())
	if cfg.Verbose {
		r.PrintSummary(os.Stderr)
	}
	return code
}

// runWithTUI shows the dashboard while the relay runs. The dashboard stays
// up after the command exits until the user quits; quitting early
// terminates the command.
func runWithTUI(ctx context.Context, r *relay.Relay, cfg *config.Config) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codeCh := make(chan int, 1)
	go func() {
		codeCh <- r.Run(ctx)
	}()

	model := tui.New(tui.Config{
		Command:     strings.Join(cfg.CommandLine(), " "),
		MetricsAddr: cfg.MetricsAddr,
		Source:      r,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
	}

	cancel()
	code := <-codeCh
	r.PrintSummary(os.Stderr)
	return code
}

// newRegistry returns a registry with the Go runtime and process
// collectors alongside the relay's own metrics.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
