package ui

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/geosearch/cmd/fleetview/internal/api"
)

const pollInterval = 2 * time.Second

// Model is the fleetview root bubbletea model: a live table of Country Data
// Server statuses polled from one geosearch instance's admin surface.
type Model struct {
	client *api.Client
	apiURL string

	connected bool
	lastErr   string
	trace     bool
	memUsage  string
	servers   []api.CountryStatus

	table  table.Model
	width  int
	height int
	ready  bool
}

type statusMsg struct {
	status api.ServerStatus
	err    error
}

type commandDoneMsg struct {
	action string
	code   string
	err    error
}

type tickMsg time.Time

// NewModel builds the initial model. It performs no I/O; the first fetch
// happens from Init.
func NewModel(client *api.Client, apiURL string) Model {
	return Model{client: client, apiURL: apiURL}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.client), tickCmd())
}

func fetchStatus(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := c.Status(ctx)
		return statusMsg{status: status, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func runCommand(c *api.Client, action, code string, fn func(context.Context, string) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := fn(ctx, code)
		return commandDoneMsg{action: action, code: code, err: err}
	}
}

func (m *Model) rebuildTable() {
	columns := []table.Column{
		{Title: "Code", Width: 6},
		{Title: "Country", Width: 24},
		{Title: "Status", Width: 10},
		{Title: "Substatus", Width: 14},
		{Title: "Progress", Width: 9},
		{Title: "Cities", Width: 8},
		{Title: "Mem", Width: 10},
		{Title: "Startup", Width: 10},
	}

	rows := make([]table.Row, len(m.servers))
	for i, s := range m.servers {
		progress := "-"
		if s.Progress > 0 {
			progress = strconv.Itoa(s.Progress) + "%"
		}
		mem := s.MemUsage
		if mem == "" {
			mem = "-"
		}
		startup := s.StartupTime
		if startup == "" {
			startup = "-"
		}
		status := lipgloss.NewStyle().Foreground(statusColor(s.Status)).Render(s.Status)
		rows[i] = table.Row{s.CountryCode, s.CountryName, status, s.Substatus, progress, strconv.Itoa(s.CityCount), mem, startup}
	}

	h := m.height - 6
	if h < 3 {
		h = 3
	}

	selected := m.table.Cursor()
	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(h),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(activeTheme.Primary).Bold(true)
	styles.Selected = styles.Selected.Foreground(activeTheme.Muted).Bold(true)
	m.table.SetStyles(styles)
	if selected < len(rows) {
		m.table.SetCursor(selected)
	}
}

func (m *Model) selectedCode() (string, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return "", false
	}
	return row[0], true
}
