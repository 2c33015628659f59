// ABOUTME: Bubbletea model for the receiver status panel
// ABOUTME: Shows listener state, active sessions and the latest status messages
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// logLines is how many status messages the panel keeps
const logLines = 12

// refreshInterval is how often the session table is refreshed
const refreshInterval = 500 * time.Millisecond

// Header describes the fixed part of the panel
type Header struct {
	Name    string
	Addr    string
	Backend string
	Device  string
	Format  string
}

// Snapshot is the live part of the panel, polled on every tick
type Snapshot struct {
	State    receiver.State
	Sessions []receiver.SessionInfo
}

// SnapshotFunc returns the current server snapshot
type SnapshotFunc func() Snapshot

// StatusMsg carries one status notification into the model
type StatusMsg receiver.Status

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	header   Header
	snapshot Snapshot
	source   SnapshotFunc
	log      []receiver.Status

	showBuffers bool
	quitting    bool
	quitChan    chan struct{}

	width  int
	height int
}

// NewModel creates a panel model. source may be nil.
func NewModel(header Header, source SnapshotFunc, quitChan chan struct{}) Model {
	m := Model{
		header:   header,
		source:   source,
		quitChan: quitChan,
	}
	m.refresh()
	return m
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh()
		return m, tickEvery()

	case StatusMsg:
		m.appendStatus(receiver.Status(msg))
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.source != nil {
		m.snapshot = m.source()
	}
}

func (m *Model) appendStatus(s receiver.Status) {
	m.log = append(m.log, s)
	if over := len(m.log) - logLines; over > 0 {
		m.log = append(m.log[:0:0], m.log[over:]...)
	}
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		// Signal the receiver to stop
		select {
		case m.quitChan <- struct{}{}:
		default:
		}
		return m, tea.Quit
	case "b":
		m.showBuffers = !m.showBuffers
	}
	return m, nil
}

// View renders the panel
func (m Model) View() string {
	if m.quitting {
		return "Stopping receiver...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title()))
	b.WriteString("\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Listening", m.header.Addr)
	field("State", m.snapshot.State.String())
	field("Output", fmt.Sprintf("%s (%s)", m.header.Device, m.header.Backend))
	field("Format", m.header.Format)
	b.WriteString("\n")

	b.WriteString(m.renderSessions())
	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("b: buffer details  q/Ctrl+C: quit"))

	return b.String()
}

func (m Model) title() string {
	if m.header.Name == "" {
		return "MicReceiver"
	}
	return "MicReceiver: " + m.header.Name
}

// renderSessions renders one line per connected sender
func (m Model) renderSessions() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.snapshot.Sessions))))
	b.WriteString("\n")

	if len(m.snapshot.Sessions) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
		return b.String()
	}

	for _, s := range m.snapshot.Sessions {
		fmt.Fprintf(&b, "  • %s", s.RemoteAddr)
		b.WriteString(valueStyle.Render(fmt.Sprintf("  %s  %s  %s",
			time.Since(s.Started).Round(time.Second),
			formatBytes(s.BytesReceived),
			s.State)))
		if s.Sink.Dropped > 0 {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  dropped %s", formatBytes(s.Sink.Dropped))))
		}
		b.WriteString("\n")

		if m.showBuffers {
			b.WriteString(valueStyle.Render(fmt.Sprintf("      buffer [%s] %d/%d  underruns %d",
				renderBar(s.Sink.Buffered, s.Sink.Capacity, 20),
				s.Sink.Buffered, s.Sink.Capacity, s.Sink.Underruns)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderLog renders the newest status messages
func (m Model) renderLog() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Status"))
	b.WriteString("\n")
	if len(m.log) == 0 {
		b.WriteString(valueStyle.Render("  (none yet)"))
		b.WriteString("\n")
	}
	for _, s := range m.log {
		b.WriteString(valueStyle.Render("  " + truncate(s.String(), m.lineWidth())))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) lineWidth() int {
	if m.width <= 4 {
		return 100
	}
	return m.width - 4
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
