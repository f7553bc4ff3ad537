package tui

import (
	"github.com/MegaGrindStone/roomchat/internal/format"
	"github.com/charmbracelet/lipgloss"
)

const sidebarWidth = 28

type styles struct {
	sidebar      lipgloss.Style
	sidebarTitle lipgloss.Style
	room         lipgloss.Style
	activeRoom   lipgloss.Style
	cursorRoom   lipgloss.Style

	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	timestamp lipgloss.Style
	failed    lipgloss.Style
	empty     lipgloss.Style

	alert  lipgloss.Style
	status lipgloss.Style
	help   lipgloss.Style

	content format.Styles
}

func defaultStyles() styles {
	return styles{
		sidebar: lipgloss.NewStyle().
			Width(sidebarWidth).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
		sidebarTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).MarginBottom(1),
		room:         lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")),
		activeRoom:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")),
		cursorRoom: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("62")),

		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		empty:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).PaddingTop(1),

		alert:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")),
		help:   lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),

		content: format.DefaultStyles(),
	}
}
