package relay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/randomizedcoder/go-proc-relay/internal/metrics"
)

// logSummary logs the end-of-run summary.
func (r *Relay) logSummary() {
	s := r.collector.GenerateSummary()
	rates := r.tracker.Stats()

	r.logger.Info("relay_summary",
		"command", r.config.Command,
		"duration", s.Duration.String(),
		"stdout_bytes", s.BytesByStream[EventStdout],
		"stderr_bytes", s.BytesByStream[EventStderr],
		"bytes_per_second", rates.BytesOverall,
		"emits", s.Emits,
		"listener_errors", s.ListenerErrors,
		"stdout_lines", r.stdoutLines.TotalLines(),
		"stderr_lines", r.stderrLines.TotalLines(),
	)

	if patterns := r.stderrLines.CountErrors(); len(patterns) > 0 {
		r.logger.Warn("relay_stderr_errors", "patterns", patterns)
	}
}

// PrintSummary writes a human-readable summary of the run.
func (r *Relay) PrintSummary(w io.Writer) {
	printSummary(w, r.config.Command, r.collector.GenerateSummary(), r.stderrLines.RecentLines(5))
}

func printSummary(w io.Writer, command string, s *metrics.Summary, lastStderr []string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                     go-proc-relay Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Command:                %s\n", command)
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(s.Duration))
	fmt.Fprintf(w, "Process Uptime:         %s\n", s.UptimeMax.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Output:")
	fmt.Fprintf(w, "  stdout:               %d bytes in %d chunks\n", s.BytesByStream[EventStdout], s.ChunksByStream[EventStdout])
	fmt.Fprintf(w, "  stderr:               %d bytes in %d chunks\n", s.BytesByStream[EventStderr], s.ChunksByStream[EventStderr])
	if s.ChunkSizeP50 > 0 {
		fmt.Fprintf(w, "  Chunk size P50/P99:   %.0f / %.0f bytes\n", s.ChunkSizeP50, s.ChunkSizeP99)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events:")
	fmt.Fprintf(w, "  Emitted:              %d\n", s.Emits)
	fmt.Fprintf(w, "  Listener errors:      %d\n", s.ListenerErrors)
	if s.Emits > 0 {
		fmt.Fprintf(w, "  Emit P50/P99:         %s / %s\n", s.EmitP50, s.EmitP99)
	}
	fmt.Fprintln(w)

	if len(s.ExitCodes) > 0 {
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Fprintln(w, "Exit Codes:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		fmt.Fprintln(w)
	}

	if len(lastStderr) > 0 {
		fmt.Fprintln(w, "Last stderr lines:")
		for _, line := range lastStderr {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 127:
		return "(not found)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}
