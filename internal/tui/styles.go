// Package tui provides a live terminal dashboard for a relayed process.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows the process state, output volume and throughput,
// emitter activity, and a tail of recent output.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-proc-relay/internal/process"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	tailLineStyle = lipgloss.NewStyle().
			Foreground(colorText)

	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)
)

// =============================================================================
// Pipeline Status Indicator
// =============================================================================

// PipelineStatus represents the health of the dashboard's output tail.
type PipelineStatus int

const (
	PipelineStatusOK PipelineStatus = iota
	PipelineStatusDegraded
	PipelineStatusSeverelyDegraded
)

// GetPipelineStatus returns the status based on drop rate.
func GetPipelineStatus(dropRate float64) PipelineStatus {
	switch {
	case dropRate > 0.10:
		return PipelineStatusSeverelyDegraded
	case dropRate > 0.0:
		return PipelineStatusDegraded
	default:
		return PipelineStatusOK
	}
}

// GetPipelineLabel returns a styled label based on drop rate.
func GetPipelineLabel(dropRate float64) string {
	switch GetPipelineStatus(dropRate) {
	case PipelineStatusSeverelyDegraded:
		return statusError.Render("● Tail (severely degraded)")
	case PipelineStatusDegraded:
		return statusWarning.Render("● Tail (degraded)")
	default:
		return statusOK.Render("● Tail")
	}
}

// =============================================================================
// Process State Indicator
// =============================================================================

// GetStateStyle returns a style for a process state and exit code.
func GetStateStyle(state process.State, exitCode int) lipgloss.Style {
	switch state {
	case process.StateStarting:
		return statusInfo
	case process.StateRunning:
		return statusOK
	case process.StateKilled:
		return statusWarning
	default:
		if exitCode == 0 {
			return statusOK
		}
		return statusError
	}
}

// GetStateLabel returns a styled state, with the exit code once finished.
func GetStateLabel(state process.State, exitCode int) string {
	text := state.String()
	if state.IsTerminal() {
		text = fmt.Sprintf("%s (%d)", text, exitCode)
	}
	return GetStateStyle(state, exitCode).Render("● " + text)
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a fill bar, used for pipeline queue occupancy.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	return bar + valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
