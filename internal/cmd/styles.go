package cmd

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#E8A33D")
	mutedColor  = lipgloss.Color("#888888")
	warnColor   = lipgloss.Color("#D75F5F")
	okColor     = lipgloss.Color("#5FAF5F")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	keyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	okStyle = lipgloss.NewStyle().
		Foreground(okColor)
)
