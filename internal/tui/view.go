package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// fixedSectionLines approximates the height of everything above the tail.
const fixedSectionLines = 26

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderProcess(),
	}

	if m.snap != nil {
		sections = append(sections, m.renderOutput())
		if m.snap.Summary != nil {
			sections = append(sections, m.renderEvents())
		}
		if m.showTail {
			sections = append(sections, m.renderTail())
		}
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-proc-relay │ %s │ %s │ Elapsed: %s ",
		m.stateLabel(),
		GetPipelineLabel(m.TailDropRate()),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) stateLabel() string {
	if m.snap == nil {
		return GetStateLabel(m.State(), 0)
	}
	return GetStateLabel(m.snap.State, m.snap.ExitCode)
}

// =============================================================================
// Process
// =============================================================================

func (m Model) renderProcess() string {
	command := m.command
	rows := []string{sectionHeaderStyle.Render("Process")}

	if m.snap != nil {
		if m.snap.Command != "" {
			command = m.snap.Command
		}
		rows = append(rows,
			RenderKeyValue("Command", truncate(command, m.width-26)),
			RenderKeyValue("PID", fmt.Sprintf("%d", m.snap.Pid)),
			RenderKeyValue("Uptime", formatDuration(m.snap.Uptime)),
		)
	} else {
		rows = append(rows,
			RenderKeyValue("Command", truncate(command, m.width-26)),
			mutedStyle.Render("waiting for process..."),
		)
	}

	if m.metricsAddr != "" {
		rows = append(rows, RenderKeyValue("Metrics", "http://"+m.metricsAddr+"/metrics"))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Output
// =============================================================================

func (m Model) renderOutput() string {
	s := m.snap
	r := s.Rates

	rows := []string{
		sectionHeaderStyle.Render("Output"),
		renderStreamRow("stdout", s.Stdout.BytesRead, s.Stdout.ChunksRead),
		renderStreamRow("stderr", s.Stderr.BytesRead, s.Stderr.ChunksRead),
		RenderKeyValue("Throughput (1s)", formatBytes(int64(r.Bytes1s))+"/s"),
		RenderKeyValue("Throughput (10s)", formatBytes(int64(r.Bytes10s))+"/s"),
		RenderKeyValue("Peak (1s)", formatBytes(int64(r.PeakBytes1s))+"/s"),
		RenderKeyValue("Chunks", formatRate(r.Chunks10s)),
	}

	if s.Summary != nil && s.Summary.ChunkSizeP50 > 0 {
		rows = append(rows, RenderKeyValue("Chunk size p50/p99",
			fmt.Sprintf("%s / %s", formatBytes(int64(s.Summary.ChunkSizeP50)), formatBytes(int64(s.Summary.ChunkSizeP99)))))
	}

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	rows = append(rows,
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("stdout queue:"), RenderProgressBar(s.Stdout.Fill(), barWidth)),
	)

	if s.Tail.ChunksDropped > 0 {
		rows = append(rows, RenderKeyValue("Tail dropped",
			fmt.Sprintf("%s (%s)", formatNumber(s.Tail.ChunksDropped), formatPercent(s.Tail.DropRate()))))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderStreamRow(name string, bytes, chunks int64) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(name+":"),
		valueStyle.Width(12).Render(formatBytes(bytes)),
		mutedStyle.Render(" ("),
		valueStyle.Render(formatNumber(chunks)+" chunks"),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Events
// =============================================================================

func (m Model) renderEvents() string {
	sum := m.snap.Summary

	errStyle := valueStyle
	if sum.ListenerErrors > 0 {
		errStyle = valueBadStyle
	}

	rows := []string{
		sectionHeaderStyle.Render("Events"),
		RenderKeyValue("Emitted", formatNumber(sum.Emits)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Listener errors:"),
			errStyle.Render(formatNumber(sum.ListenerErrors)),
		),
	}
	if sum.Emits > 0 {
		rows = append(rows, RenderKeyValue("Emit p50/p99",
			fmt.Sprintf("%s / %s", formatLatency(sum.EmitP50), formatLatency(sum.EmitP99))))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Tail
// =============================================================================

func (m Model) renderTail() string {
	rows := []string{sectionHeaderStyle.Render("Recent output")}

	if len(m.snap.Lines) == 0 {
		rows = append(rows, dimStyle.Render("(no output yet)"))
	}
	for _, line := range m.snap.Lines {
		rows = append(rows, tailLineStyle.Render(truncate(line, m.width-6)))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	help := []string{"q: quit", "t: toggle tail", "r: refresh"}
	return footerStyle.Render(strings.Join(help, " • ") +
		dimStyle.Render(fmt.Sprintf("  (updated %s)", m.lastUpdate.Format("15:04:05"))))
}

// truncate shortens s to width cells, stripping escape sequences from
// child output first.
func truncate(s string, width int) string {
	s = ansi.Strip(s)
	if width < 4 {
		width = 4
	}
	return ansi.Truncate(s, width, "…")
}
