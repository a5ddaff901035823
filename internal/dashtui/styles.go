package dashtui

import "github.com/charmbracelet/lipgloss"

// Color palette - dark theme inspired by Catppuccin Mocha
var (
	ColorBase     = lipgloss.Color("#1e1e2e")
	ColorSurface1 = lipgloss.Color("#45475a")
	ColorSurface2 = lipgloss.Color("#585b70")
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")

	ColorRed    = lipgloss.Color("#f38ba8")
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorMauve  = lipgloss.Color("#cba6f7")
	ColorTeal   = lipgloss.Color("#94e2d5")
	ColorPeach  = lipgloss.Color("#fab387")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBase).
			Background(ColorBlue).
			Padding(0, 2).
			MarginBottom(1)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMauve)

	SelectedRowStyle = lipgloss.NewStyle().
				Background(ColorSurface1).
				Foreground(ColorText).
				Bold(true)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorSurface2)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext0).
			Padding(0, 1)

	EmptyStateStyle = lipgloss.NewStyle().
			Foreground(ColorOverlay0).
			Italic(true).
			Padding(2, 4)

	AttentionStyle = lipgloss.NewStyle().
			Foreground(ColorPeach).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)
)

// StyledSessionStatus renders a colored status label.
func StyledSessionStatus(status string) string {
	switch status {
	case "active":
		return lipgloss.NewStyle().Foreground(ColorGreen).Bold(true).Render("ACTIVE")
	case "idle":
		return lipgloss.NewStyle().Foreground(ColorSubtext0).Render("IDLE")
	case "stale":
		return lipgloss.NewStyle().Foreground(ColorYellow).Render("STALE")
	case "error":
		return ErrorStyle.Render("ERROR")
	case "archived":
		return lipgloss.NewStyle().Foreground(ColorOverlay0).Render("ARCHIVED")
	default:
		return lipgloss.NewStyle().Foreground(ColorText).Render(status)
	}
}

// StyledConnStatus renders the connection indicator for the status bar.
func StyledConnStatus(status string) string {
	switch status {
	case "connected":
		return lipgloss.NewStyle().Foreground(ColorGreen).Render("● connected")
	case "connecting":
		return lipgloss.NewStyle().Foreground(ColorYellow).Render("◌ connecting")
	case "auth_failed":
		return ErrorStyle.Render("✗ auth failed")
	case "failed":
		return ErrorStyle.Render("✗ connection failed (r to retry)")
	default:
		return lipgloss.NewStyle().Foreground(ColorRed).Render("○ disconnected")
	}
}
