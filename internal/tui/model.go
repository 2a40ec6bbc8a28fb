package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-proc-relay/internal/metrics"
	"github.com/randomizedcoder/go-proc-relay/internal/process"
	"github.com/randomizedcoder/go-proc-relay/internal/stream"
	"github.com/randomizedcoder/go-proc-relay/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries an updated snapshot.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Snapshot is everything the dashboard shows at one point in time.
type Snapshot struct {
	Command  string
	Pid      int
	State    process.State
	Uptime   time.Duration
	ExitCode int // meaningful once State is terminal

	Stdout stream.Stats
	Stderr stream.Stats
	Tail   stream.Stats

	Rates   timeseries.Rates
	Summary *metrics.Summary
	Lines   []string
}

// Source provides snapshots. The relay implements it.
type Source interface {
	Snapshot(tailLines int) Snapshot
}

// Config holds TUI configuration.
type Config struct {
	Command     string
	MetricsAddr string
	Source      Source
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	command     string
	metricsAddr string
	source      Source

	// Current state
	snap       *Snapshot
	startTime  time.Time
	lastUpdate time.Time
	showTail   bool

	// Display options
	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		command:     cfg.Command,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		showTail:    true,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "t":
			m.showTail = !m.showTail
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			snap := m.source.Snapshot(m.tailCapacity())
			m.snap = &snap
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case SnapshotMsg:
		snap := msg.Snapshot
		m.snap = &snap
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

// State returns the last known process state.
func (m Model) State() process.State {
	if m.snap == nil {
		return process.StateStarting
	}
	return m.snap.State
}

// TailDropRate returns the drop rate of the tail pipeline.
func (m Model) TailDropRate() float64 {
	if m.snap == nil {
		return 0
	}
	return m.snap.Tail.DropRate()
}

// tailCapacity is how many tail lines fit under the fixed sections.
func (m Model) tailCapacity() int {
	if !m.showTail {
		return 0
	}
	n := m.height - fixedSectionLines
	if n < 3 {
		n = 3
	}
	return n
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendSnapshot pushes a snapshot to the TUI.
func SendSnapshot(p *tea.Program, snap Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: snap})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatLatency formats a short duration in µs or ms.
func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}

// formatRate formats a per-second rate with appropriate precision.
func formatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}

// formatPercent formats a fraction as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
