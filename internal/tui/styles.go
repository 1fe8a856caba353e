package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor    = lipgloss.Color("99")  // Purple
	successColor    = lipgloss.Color("42")  // Green
	warningColor    = lipgloss.Color("226") // Yellow
	errorColor      = lipgloss.Color("196") // Red
	mutedColor      = lipgloss.Color("245") // Gray
	accentColor     = lipgloss.Color("212") // Pink
	backgroundColor = lipgloss.Color("235") // Dark gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			PaddingRight(2)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	cursorItemStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Foreground(accentColor).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(primaryColor)

	markStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	consoleStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(mutedColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	emptyStateStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true).
			PaddingLeft(2)

	errorBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(errorColor).
			Padding(1, 2).
			Background(backgroundColor)

	errorTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor).
			MarginBottom(1)

	confirmBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(warningColor).
			Padding(1, 2).
			Background(backgroundColor)

	confirmTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(warningColor).
				MarginBottom(1)

	commandStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Width(12)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	helpBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 3)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)
