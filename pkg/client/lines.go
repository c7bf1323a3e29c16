// Package client provides an HTTP client for the trainboard API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/storage"
)

// StaleHeader is set to "true" on /lines responses whose oldest entry has
// missed at least two refresh intervals.
const StaleHeader = "X-Trainboard-Stale"

// LinesClient fetches cached arrival snapshots from a trainboard server.
// It is safe for concurrent use by multiple goroutines.
type LinesClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLinesClient creates a client for the server at baseURL
// (e.g. "http://localhost:5000" or "https://example.com/board") with a 5
// second request timeout. Request paths are joined onto baseURL's path.
func NewLinesClient(baseURL string) *LinesClient {
	return NewLinesClientWithTimeout(baseURL, 5*time.Second)
}

// NewLinesClientWithTimeout creates a client with a custom timeout.
func NewLinesClientWithTimeout(baseURL string, timeout time.Duration) *LinesClient {
	return &LinesClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LinesResult is a decoded /lines response.
type LinesResult struct {
	Snapshot storage.Snapshot
	Stale    bool
}

// PayloadsResult is a decoded /awesome response.
type PayloadsResult struct {
	Inbound  []json.RawMessage
	Outbound []json.RawMessage
}

// GetLines fetches the full snapshot and whether the server flagged it stale.
func (c *LinesClient) GetLines(ctx context.Context) (*LinesResult, error) {
	var snap storage.Snapshot
	header, err := c.get(ctx, "/lines", &snap)
	if err != nil {
		return nil, err
	}
	return &LinesResult{
		Snapshot: snap,
		Stale:    header.Get(StaleHeader) == "true",
	}, nil
}

// GetPayloads fetches the payload-only view. An unknown direction key is a
// decode error.
func (c *LinesClient) GetPayloads(ctx context.Context) (*PayloadsResult, error) {
	var byDirection map[lines.Direction][]json.RawMessage
	if _, err := c.get(ctx, "/awesome", &byDirection); err != nil {
		return nil, err
	}
	return &PayloadsResult{
		Inbound:  byDirection[lines.Inbound],
		Outbound: byDirection[lines.Outbound],
	}, nil
}

func (c *LinesClient) get(ctx context.Context, path string, into any) (http.Header, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u = u.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}
