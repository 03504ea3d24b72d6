package cmd

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#D2A679")
	colorSuccess   = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorTextMuted = lipgloss.Color("#888888")

	assistantStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	warnStyle      = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorTextMuted)
	headerStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Underline(true)
)
