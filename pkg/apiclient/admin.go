package apiclient

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/marmos91/stowd/pkg/journal"
	"github.com/marmos91/stowd/pkg/server"
)

// StoreHealth is the readiness probe result.
type StoreHealth struct {
	Type    string `json:"type"`
	Latency string `json:"latency"`
}

// Status is the event loop state reported by GET /status.
type Status struct {
	server.Stats
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// UptimeDuration returns the uptime rounded to seconds.
func (s Status) UptimeDuration() time.Duration {
	return time.Duration(s.UptimeSeconds * float64(time.Second)).Round(time.Second)
}

// HistoryQuery filters GET /history.
type HistoryQuery struct {
	Filename string
	Command  string
	Limit    int
}

// Ready runs the store readiness probe.
func (c *Client) Ready(ctx context.Context) (*StoreHealth, error) {
	var h StoreHealth
	if err := c.get(ctx, "/health/ready", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Status returns the event loop statistics.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Files lists the indexed filenames.
func (c *Client) Files(ctx context.Context) ([]string, error) {
	var resp struct {
		Count int      `json:"count"`
		Files []string `json:"files"`
	}
	if err := c.get(ctx, "/files", &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// History returns journal entries, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]journal.Entry, error) {
	params := url.Values{}
	if q.Filename != "" {
		params.Set("filename", q.Filename)
	}
	if q.Command != "" {
		params.Set("command", q.Command)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var entries []journal.Entry
	if err := c.get(ctx, path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
