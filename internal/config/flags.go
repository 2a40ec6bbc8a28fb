package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// envList is a custom flag type for repeatable -env flags.
type envList []string

func (e *envList) String() string {
	return strings.Join(*e, ", ")
}

func (e *envList) Set(value string) error {
	*e = append(*e, value)
	return nil
}

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config.
//
// If -config names a YAML file it is loaded first, so its values become the
// flag defaults and flags given on the command line override them.
// Everything after the flags (conventionally after "--") is the command to run.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFile(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	fs := flag.NewFlagSet("go-proc-relay", flag.ContinueOnError)
	fs.SetOutput(output)
	env := envList(cfg.Env)

	fs.Usage = func() {
		fmt.Fprintf(output, `go-proc-relay - run a command and relay its output as events

Usage:
  go-proc-relay [flags] -- <command> [args...]

Process Flags:
`)
		printFlagCategory(fs, output, []string{"dir", "env", "stdin", "pty", "stop-timeout"})

		fmt.Fprintf(output, "\nStreaming:\n")
		printFlagCategory(fs, output, []string{"chunk-size", "buffer", "prefix", "quiet"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-dump", "tui", "v", "log-format", "log-level"})

		fmt.Fprintf(output, "\nConfiguration & Diagnostics:\n")
		printFlagCategory(fs, output, []string{"config", "dump-config", "skip-preflight", "version"})

		fmt.Fprintf(output, `
Examples:
  # Relay a command's output
  go-proc-relay -- echo hello

  # Prefix each chunk and expose metrics
  go-proc-relay -prefix "received datum: " -metrics 127.0.0.1:17091 -- ping -c 3 localhost

  # Watch a long-running command on the dashboard
  go-proc-relay -tui -- tail -f /var/log/syslog

`)
	}

	// Process
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Working directory for the command")
	fs.Var(&env, "env", "Add KEY=VALUE to the command's environment (can repeat)")
	fs.BoolVar(&cfg.Stdin, "stdin", cfg.Stdin, "Forward this process's stdin to the command")
	fs.BoolVar(&cfg.PTY, "pty", cfg.PTY, "Run the command on a pseudo-terminal (stderr is merged into stdout)")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Grace period between SIGTERM and SIGKILL on shutdown")

	// Streaming
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Read buffer size per pipe read, in bytes")
	fs.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "Chunks queued per stream before the child is blocked")
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, `String written before each relayed chunk (e.g. "received datum: ")`)
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Do not echo the command's output")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty disables)")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write a metrics snapshot to this file on exit")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)

	// Configuration & Diagnostics
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (flags override its values)")
	fs.StringVar(&cfg.DumpConfig, "dump-config", cfg.DumpConfig, "Write the effective config as YAML to this file and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = env

	// Positional arguments: the command and its argument vector
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.Command = rest[0]
		cfg.Args = append([]string(nil), rest[1:]...)
	}

	return cfg, nil
}

// IsHelp reports whether err came from -h or -help.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

// findConfigFile scans the flag section of args for -config, without
// parsing anything else.
func findConfigFile(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			return ""
		}
		name := strings.TrimLeft(arg, "-")
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
