package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.rebuildTable()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, fetchStatus(m.client)
		case key.Matches(msg, keys.Start):
			if code, ok := m.selectedCode(); ok {
				cmds = append(cmds, runCommand(m.client, "start", code, m.client.Start))
			}
		case key.Matches(msg, keys.Stop):
			if code, ok := m.selectedCode(); ok {
				cmds = append(cmds, runCommand(m.client, "stop", code, m.client.Stop))
			}
		case key.Matches(msg, keys.Reset):
			if code, ok := m.selectedCode(); ok {
				cmds = append(cmds, runCommand(m.client, "reset", code, m.client.Reset))
			}
		}

	case statusMsg:
		if msg.err != nil {
			m.connected = false
			m.lastErr = msg.err.Error()
		} else {
			m.connected = true
			m.lastErr = ""
			m.trace = msg.status.CountryManagerTrace
			m.memUsage = msg.status.ErlangMemoryUsage
			m.servers = msg.status.Servers
			m.rebuildTable()
		}

	case commandDoneMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
			cmds = append(cmds, fetchStatus(m.client))
		}

	case tickMsg:
		cmds = append(cmds, fetchStatus(m.client), tickCmd())
	}

	if m.ready {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
