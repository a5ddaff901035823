// Package dashtui renders the live session dashboard in the terminal.
package dashtui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulseboard/pulseboard/internal/client"
)

// stateChangedMsg is sent whenever the connection manager applies a
// server push or changes connection status.
type stateChangedMsg struct{}

// tickMsg redraws periodically so stale projections and relative times
// stay current even without server traffic.
type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	manager *client.Manager
	keys    KeyMap

	width  int
	height int

	selectedIdx int
	showDetail  bool
	detailID    string
}

func NewModel(manager *client.Manager) Model {
	return Model{
		manager: manager,
		keys:    DefaultKeyMap(),
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stateChangedMsg:
		return m.clampSelection(), nil

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.manager.Disconnect()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
			return m, nil

		case key.Matches(msg, m.keys.Down):
			if m.selectedIdx < len(m.manager.State().Snapshot().Sessions)-1 {
				m.selectedIdx++
			}
			return m, nil

		case key.Matches(msg, m.keys.Enter):
			sessions := m.manager.State().Snapshot().Sessions
			if m.selectedIdx < len(sessions) {
				m.showDetail = true
				m.detailID = sessions[m.selectedIdx].ID
			}
			return m, nil

		case key.Matches(msg, m.keys.Escape):
			m.showDetail = false
			return m, nil

		case key.Matches(msg, m.keys.Reconnect):
			m.manager.Connect()
			return m, nil
		}
	}

	return m, nil
}

func (m Model) clampSelection() Model {
	n := len(m.manager.State().Snapshot().Sessions)
	if m.selectedIdx >= n && n > 0 {
		m.selectedIdx = n - 1
	}
	if n == 0 {
		m.selectedIdx = 0
	}
	return m
}
