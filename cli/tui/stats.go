package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/gate"
	"github.com/pithecene-io/scenesync/metrics"
)

// keyMap defines key bindings.
type keyMap struct {
	Faster key.Binding
	Slower key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Faster: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "faster"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "slower"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type tickMsg time.Time

// Model is the live stats view.
type Model struct {
	src     Source
	refresh time.Duration
	now     func() time.Time
	help    help.Model

	running   bool
	sessionID string
	peer      string
	stats     metrics.Snapshot
	last      engine.TransformState
	hasLast   bool
	gate      gate.State
	hz        float64

	width    int
	quitting bool
}

// NewModel creates a live view over src.
func NewModel(src Source, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	m := Model{
		src:     src,
		refresh: refresh,
		now:     time.Now,
		help:    help.New(),
	}
	return m.poll()
}

func (m Model) poll() Model {
	m.running = m.src.Running()
	m.sessionID = m.src.SessionID()
	m.peer = m.src.Peer()
	m.stats = m.src.Stats()
	m.last, m.hasLast = m.src.LastTransform()
	m.gate = m.src.GateState()
	m.hz = m.src.SceneFrequency()
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m.poll(), m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Faster):
			m.src.SetSceneFrequency(m.hz + 1)
			return m.poll(), nil
		case key.Matches(msg, keys.Slower):
			m.src.SetSceneFrequency(m.hz - 1)
			return m.poll(), nil
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Scene Sync"))
	b.WriteString("\n")
	b.WriteString(m.renderSession())
	b.WriteString("\n\n")

	s := m.stats
	boxes := []string{
		m.renderStatBox("Packets", fmt.Sprintf("%d", s.PacketsSent), highlightColor),
		m.renderStatBox("Sent", metrics.FormatBytes(s.BytesSent), highlightColor),
		m.renderStatBox("Rate", fmt.Sprintf("%.1f Hz", s.SyncRate), successColor),
		m.renderStatBox("Cache Hit", fmt.Sprintf("%.0f%%", s.CacheHitRate()*100), successColor),
		m.renderStatBox("Errors", fmt.Sprintf("%d", s.Errors+s.DecodeErrors), errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")
	b.WriteString(m.renderTransform())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.ShortHelpView([]key.Binding{keys.Faster, keys.Slower, keys.Quit})))
	return b.String()
}

func (m Model) renderSession() string {
	status := "disconnected"
	if m.running {
		status = "connected"
	}
	rows := []string{
		field("Status:", ConnectionStyle(m.running).Render(status)),
		field("Peer:", ValueStyle.Render(m.peer)),
		field("Session:", ValueStyle.Render(m.sessionID)),
		field("Runtime:", ValueStyle.Render(metrics.FormatRuntime(m.stats.Runtime()))),
		field("Frequency:", ValueStyle.Render(fmt.Sprintf("%.0f Hz", m.hz))),
		field("Gate:", GateStyle(m.gate.String()).Render(m.gate.String())),
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderTransform() string {
	if !m.hasLast {
		return BoxStyle.Render(LabelStyle.Render("No transforms received"))
	}
	t := m.last
	rows := []string{
		field("Object:", ValueStyle.Render(t.ObjectName)),
		field("Position:", ValueStyle.Render(formatVec(t.Position))),
		field("Rotation:", ValueStyle.Render(formatVec(t.Rotation))),
		field("Scale:", ValueStyle.Render(formatVec(t.Scale))),
		field("Received:", ValueStyle.Render(metrics.FormatAgo(m.now().Sub(t.ReceivedAt)))),
		field("Total:", ValueStyle.Render(fmt.Sprintf("%d", t.TotalReceived))),
	}
	return BoxStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

func field(label, value string) string {
	return LabelStyle.Render(label) + " " + value
}

func formatVec(v [3]float64) string {
	return fmt.Sprintf("%.2f, %.2f, %.2f", v[0], v[1], v[2])
}
