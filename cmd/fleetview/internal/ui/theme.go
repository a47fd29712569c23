package ui

import "github.com/charmbracelet/lipgloss"

// theme is fleetview's single palette. Unlike a consumer-facing dashboard,
// an operator tool doesn't need theme switching — one legible palette that
// reads well in a terminal is enough.
type theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color
	Muted   lipgloss.Color
}

var activeTheme = theme{
	Primary: lipgloss.Color("#00d4ff"),
	Success: lipgloss.Color("#00ff88"),
	Error:   lipgloss.Color("#ff4444"),
	Warning: lipgloss.Color("#ffaa00"),
	Muted:   lipgloss.Color("#888888"),
}

func statusColor(status string) lipgloss.Color {
	switch status {
	case "started":
		return activeTheme.Success
	case "crashed":
		return activeTheme.Error
	case "starting":
		return activeTheme.Warning
	default:
		return activeTheme.Muted
	}
}
