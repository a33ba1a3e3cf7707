package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// header, box borders, footer, prompt and help
const chromeLines = 7

var (
	primaryColor = lipgloss.Color("#3b82f6")
	successColor = lipgloss.Color("#10b981")
	errorColor   = lipgloss.Color("#ef4444")
	mutedColor   = lipgloss.Color("#94a3b8")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	connectedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func (m Model) header() string {
	var conn string
	if m.connected {
		conn = connectedStyle.Render("● connected")
	} else {
		conn = m.spinner.View() + mutedStyle.Render(" connecting")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(m.topic),
		"  ",
		conn,
		"  ",
		mutedStyle.Render(fmt.Sprintf("channel %s", m.state)),
	)
}

func (m Model) footer() string {
	if m.err != nil {
		return errorStyle.Render("✗ " + m.err.Error())
	}
	return mutedStyle.Render(m.status)
}
