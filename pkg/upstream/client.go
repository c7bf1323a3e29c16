// Package upstream talks to the transit arrivals API that trainboard caches.
//
// The API is treated as an opaque source: a GET on
// <base>/<origin>/<destination>/<limit> returns a JSON document, or fails.
// The client issues exactly one request per call and never retries; the
// refresh loop that owns the call provides the retry by running again on
// its next tick.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public SEPTA NextToArrive endpoint.
	DefaultBaseURL = "http://www3.septa.org/hackathon/NextToArrive"
	// DefaultLimit is the number of trains requested per query.
	DefaultLimit = 5
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 10 * time.Second
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes = 4 << 20
)

// ErrNetwork marks transport failures: DNS, connection, timeout, body read.
var ErrNetwork = errors.New("upstream network error")

// StatusError is returned when upstream answers with a non-2xx status.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// Client fetches raw arrival documents. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the given base URL with DefaultTimeout.
func NewClient(baseURL string) (*Client, error) {
	return NewClientWithTimeout(baseURL, DefaultTimeout)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// BaseURL returns the configured upstream base.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Fetch retrieves the next trains between origin and destination.
// Segments are path-escaped, so station names with spaces or slashes are
// sent intact.
func (c *Client) Fetch(ctx context.Context, origin, destination string, limit int) ([]byte, error) {
	if origin == "" || destination == "" {
		return nil, errors.New("origin and destination are required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	u := c.resolve([]string{origin, destination, strconv.Itoa(limit)}, "")
	return c.get(ctx, u)
}

// Forward passes an arbitrary sub-path through to upstream. The path is split
// on "/" and every segment re-escaped before being joined onto the base URL.
func (c *Client) Forward(ctx context.Context, path, rawQuery string) ([]byte, error) {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return c.get(ctx, c.resolve(segments, rawQuery))
}

func (c *Client) resolve(segments []string, rawQuery string) string {
	u := *c.baseURL
	if len(segments) > 0 {
		escaped := make([]string, len(segments))
		for i, s := range segments {
			escaped[i] = url.PathEscape(s)
		}
		// RawPath keeps "/" inside a segment encoded as %2F.
		u.Path = c.baseURL.Path + "/" + strings.Join(segments, "/")
		u.RawPath = c.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")
	}
	u.RawQuery = rawQuery
	return u.String()
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	body = TrimAtNull(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

// TrimAtNull cuts b at its first NUL byte. Some upstream responses carry
// trailing NUL padding after the JSON document; everything from the first
// NUL on is discarded.
func TrimAtNull(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}
