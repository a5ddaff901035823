package dashtui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	width := m.width
	if width < 20 {
		width = 80
	}
	contentWidth := width - 4

	header := HeaderStyle.Render("pulseboard")

	var body string
	if m.showDetail {
		body = m.renderTimeline(contentWidth)
	} else {
		body = m.renderSessionList(contentWidth)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, "", m.renderStatusBar())
}

func (m Model) renderSessionList(width int) string {
	sessions := m.manager.State().Snapshot().Sessions
	if len(sessions) == 0 {
		return EmptyStateStyle.Render("No sessions yet. Waiting for agents to report in.")
	}

	var lines []string
	headerLine := fmt.Sprintf("  %-3s %-28s %-12s %-10s %10s %9s  %s",
		"", TableHeaderStyle.Render("Title"), TableHeaderStyle.Render("Host"),
		TableHeaderStyle.Render("Status"), TableHeaderStyle.Render("Tokens"),
		TableHeaderStyle.Render("Cost"), TableHeaderStyle.Render("Updated"))
	lines = append(lines, headerLine)
	lines = append(lines, DividerStyle.Render(strings.Repeat("─", width)))

	maxVisible := m.height - 8
	if maxVisible < 5 {
		maxVisible = 5
	}

	startIdx := 0
	if m.selectedIdx >= maxVisible {
		startIdx = m.selectedIdx - maxVisible + 1
	}
	endIdx := startIdx + maxVisible
	if endIdx > len(sessions) {
		endIdx = len(sessions)
	}

	now := time.Now().UnixMilli()
	for i := startIdx; i < endIdx; i++ {
		sess := sessions[i]

		marker := "   "
		if sess.NeedsAttention {
			marker = AttentionStyle.Render(" ! ")
		}

		title := sess.Title
		if title == "" {
			title = sess.ID
		}
		if sess.ParentSessionID != "" {
			title = "└ " + title
		}
		if len(title) > 28 {
			title = title[:25] + "..."
		}

		line := fmt.Sprintf("  %s %-28s %-12s %-10s %10d %8.2f$  %s",
			marker,
			title,
			lipgloss.NewStyle().Foreground(ColorTeal).Render(fmt.Sprintf("%-12s", truncate(sess.Hostname, 12))),
			StyledSessionStatus(sess.Status),
			sess.TokenTotal,
			sess.CostTotal,
			lipgloss.NewStyle().Foreground(ColorOverlay0).Render(relativeTime(now, sess.UpdatedAt)),
		)

		if i == m.selectedIdx {
			line = SelectedRowStyle.Width(width).Render(line)
		}
		lines = append(lines, line)
	}

	if len(sessions) > maxVisible {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(ColorOverlay0).Render(
			fmt.Sprintf("  showing %d-%d of %d", startIdx+1, endIdx, len(sessions))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderTimeline(width int) string {
	snapshot := m.manager.State().Snapshot()
	sess, ok := snapshot.Session(m.detailID)
	if !ok {
		return EmptyStateStyle.Render("Session no longer exists. Press ESC to go back.")
	}

	var lines []string
	title := sess.Title
	if title == "" {
		title = sess.ID
	}
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(ColorBlue).Render("  "+title))
	lines = append(lines, DividerStyle.Render(strings.Repeat("─", width)))

	events := snapshot.Timelines[sess.ID]
	if len(events) == 0 {
		lines = append(lines, EmptyStateStyle.Render("No timeline events buffered for this session."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	maxVisible := m.height - 8
	if maxVisible < 5 {
		maxVisible = 5
	}
	start := 0
	if len(events) > maxVisible {
		start = len(events) - maxVisible
	}

	for _, ev := range events[start:] {
		ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
		label := ev.EventType
		if ev.ToolName != "" {
			label = ev.ToolName
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			lipgloss.NewStyle().Foreground(ColorOverlay0).Render(ts),
			styledEventType(label, ev.EventType),
			lipgloss.NewStyle().Foreground(ColorText).Render(truncate(ev.Summary, width-30)),
		))
	}

	lines = append(lines, "", lipgloss.NewStyle().Foreground(ColorOverlay0).Italic(true).Render("  Press ESC to go back"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func styledEventType(label, eventType string) string {
	padded := fmt.Sprintf("%-12s", truncate(label, 12))
	switch eventType {
	case "error":
		return ErrorStyle.Render(padded)
	case "permission":
		return AttentionStyle.Render(padded)
	case "user":
		return lipgloss.NewStyle().Foreground(ColorGreen).Render(padded)
	default:
		return lipgloss.NewStyle().Foreground(ColorMauve).Render(padded)
	}
}

func (m Model) renderStatusBar() string {
	help := "q quit · r reconnect · enter timeline · esc back"
	return StatusBarStyle.Render(StyledConnStatus(m.manager.Status()) + "  " + help)
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// relativeTime formats how long ago an epoch-milli timestamp was.
func relativeTime(nowMillis, thenMillis int64) string {
	d := time.Duration(nowMillis-thenMillis) * time.Millisecond
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
