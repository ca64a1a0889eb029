package tui

import "github.com/charmbracelet/lipgloss"

// Palette mirrors the muted ice/slate scheme used elsewhere in this
// codebase's terminal tooling.
var (
	ColorAccent = lipgloss.Color("#A8D8EA")
	ColorMuted  = lipgloss.Color("#596E79")
	ColorAlert  = lipgloss.Color("#FF6B6B")
	ColorGood   = lipgloss.Color("#4ECDC4")
	ColorText   = lipgloss.Color("#E0E0E0")
)

var (
	StyleApp = lipgloss.NewStyle().Margin(1, 2)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorMuted).
			Padding(0, 1)

	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)

	StyleStatusLive    = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusDeleted = lipgloss.NewStyle().Foreground(ColorAlert)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().Foreground(ColorMuted)
)
