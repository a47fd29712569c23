// Package api is the fleetview TUI's HTTP client against the geosearch
// admin/status surface (internal/server). It has no knowledge of the
// control plane internals, only the JSON shapes the server exposes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to one geosearch server's admin HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// CountryStatus mirrors internal/server's countryStatusView JSON shape.
type CountryStatus struct {
	CountryCode string `json:"country_code"`
	ServerName  string `json:"server_name"`
	CountryName string `json:"country_name"`
	Continent   string `json:"continent"`
	Status      string `json:"status"`
	Substatus   string `json:"substatus"`
	Progress    int    `json:"progress"`
	CityCount   int    `json:"city_count"`
	MemUsage    string `json:"mem_usage"`
	StartupTime string `json:"startup_time"`
	Trace       bool   `json:"trace"`
}

// ServerStatus mirrors internal/server's serverStatusResponse JSON shape.
type ServerStatus struct {
	CountryManagerTrace bool            `json:"country_manager_trace"`
	ErlangMemoryUsage   string          `json:"erlang_memory_usage"`
	Servers             []CountryStatus `json:"servers"`
}

// commandResponse mirrors internal/server's commandResponse envelope.
type commandResponse struct {
	FromServer string `json:"from_server"`
	Cmd        string `json:"cmd"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// Status fetches GET /server_status.
func (c *Client) Status(ctx context.Context) (ServerStatus, error) {
	var out ServerStatus
	if err := c.get(ctx, "/server_status", &out); err != nil {
		return ServerStatus{}, err
	}
	return out, nil
}

// Start sends GET /cmd/start?country_code=<code>.
func (c *Client) Start(ctx context.Context, code string) error {
	return c.command(ctx, "/cmd/start", code)
}

// Stop sends GET /cmd/stop?country_code=<code>.
func (c *Client) Stop(ctx context.Context, code string) error {
	return c.command(ctx, "/cmd/stop", code)
}

// Reset sends GET /cmd/reset?country_code=<code>.
func (c *Client) Reset(ctx context.Context, code string) error {
	return c.command(ctx, "/cmd/reset", code)
}

func (c *Client) command(ctx context.Context, path, code string) error {
	var resp commandResponse
	if err := c.get(ctx, path+"?country_code="+url.QueryEscape(code), &resp); err != nil {
		return err
	}
	if resp.Status == "error" {
		return fmt.Errorf("%s %s: %s", path, code, resp.Reason)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
