// Package main is fleetview, a terminal dashboard for the geosearch admin
// surface: a live table of Country Data Server statuses polled over HTTP,
// with start/stop/reset bound to keys, for operators who'd rather watch a
// terminal than curl /server_status in a loop.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/geosearch/cmd/fleetview/internal/api"
	"github.com/aristath/geosearch/cmd/fleetview/internal/ui"
)

func main() {
	apiURL := flag.String("api-url", "http://localhost:8080", "geosearch server admin URL")
	flag.Parse()

	client := api.NewClient(*apiURL)
	m := ui.NewModel(client, *apiURL)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetview: %v\n", err)
		os.Exit(1)
	}
}
