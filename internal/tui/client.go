// Package tui provides the terminal dashboard for the monitor daemon.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/theirongolddev/aimon/internal/model"
)

// Client is a thin HTTP client for the daemon API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the daemon at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path) //nolint:noctx // short local poll
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DashboardStats fetches the aggregate dashboard view.
func (c *Client) DashboardStats() (model.DashboardStats, error) {
	var stats model.DashboardStats
	err := c.get("/api/dashboard/stats", &stats)
	return stats, err
}

// Sessions fetches one page of sessions, newest first.
func (c *Client) Sessions(pageSize int) (model.SessionPage, error) {
	var page model.SessionPage
	err := c.get("/api/sessions?page_size="+url.QueryEscape(fmt.Sprint(pageSize)), &page)
	return page, err
}

// Agents fetches agents, optionally narrowed to a status.
func (c *Client) Agents(status string) ([]model.Agent, error) {
	var agents []model.Agent
	path := "/api/agents"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	err := c.get(path, &agents)
	return agents, err
}

// ToolStats fetches the per-tool usage distribution.
func (c *Client) ToolStats() ([]model.ToolStats, error) {
	var stats []model.ToolStats
	err := c.get("/api/tools/stats", &stats)
	return stats, err
}
