package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(activeTheme.Primary)
	errStyle    = lipgloss.NewStyle().Foreground(activeTheme.Error)
	footerStyle = lipgloss.NewStyle().Foreground(activeTheme.Muted)
)

func (m Model) View() string {
	if !m.ready {
		return "loading fleet status...\n"
	}

	connState := "connected"
	connColor := activeTheme.Success
	if !m.connected {
		connState = "disconnected"
		connColor = activeTheme.Error
	}

	header := fmt.Sprintf(
		"%s  %s  trace=%v  mem=%s",
		headerStyle.Render("geosearch fleetview"),
		lipgloss.NewStyle().Foreground(connColor).Render(connState),
		m.trace,
		m.memUsage,
	)

	body := m.table.View()

	footer := footerStyle.Render("↑/↓ select · s start · x stop · e reset · r refresh · q quit")
	if m.lastErr != "" {
		footer = errStyle.Render("error: "+m.lastErr) + "\n" + footer
	}

	return header + "\n\n" + body + "\n\n" + footer + "\n"
}
