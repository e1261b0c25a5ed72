// Package client talks to a session viewer API server. It implements
// store.Loader and store.Browser so a remote server can stand in for the
// local filesystem.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

// Client is an HTTP client for the /api endpoints with retry logic.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

var (
	_ store.Loader  = (*Client)(nil)
	_ store.Browser = (*Client)(nil)
)

// APIError is a failed request. Status is the HTTP status, 0 for network
// failures and 408 for timeouts.
type APIError struct {
	Status     int
	Message    string
	Err        error  // underlying transport error, if any
	retryAfter string // Retry-After header value for 429s
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "network error: " + e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status; store.IsNotFound relies on it.
func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Unwrap() error { return e.Err }

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBackoff sets the first retry delay. Later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const maxRetries = 3

// GetJSON sends a GET request and unmarshals the JSON response into dest.
// Returns *APIError for non-2xx responses and transport failures. Retries on
// 429 (honoring Retry-After) and 5xx with exponential backoff.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.backoffDelay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(ctx, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return transportError(ctx, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", path, err)
			}
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body, resp.Status)}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return lastErr
}

func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.Status == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff << (attempt - 1)
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &APIError{Status: http.StatusRequestTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{Status: 0, Message: err.Error(), Err: err}
}

// errorMessage extracts the server's {"error": "..."} text, falling back
// to the start of the body or the status line.
func errorMessage(body []byte, status string) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		return status
	}
	return msg
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.GetJSON(ctx, "/api/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("server unhealthy: %q", resp.Status)
	}
	return nil
}

// ListProjects implements store.Browser.
func (c *Client) ListProjects(ctx context.Context) ([]store.ProjectInfo, error) {
	var resp struct {
		Projects []store.ProjectInfo `json:"projects"`
	}
	if err := c.GetJSON(ctx, "/api/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// ListSessions implements store.Browser.
func (c *Client) ListSessions(ctx context.Context, project string, limit int) ([]store.SessionInfo, error) {
	q := url.Values{"project": {project}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Sessions []store.SessionInfo `json:"sessions"`
	}
	if err := c.GetJSON(ctx, "/api/sessions", q, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// LoadSession implements store.Loader.
func (c *Client) LoadSession(ctx context.Context, project, sessionID string) (*store.SessionData, error) {
	q := url.Values{"project": {project}, "sessionId": {sessionID}}
	var data store.SessionData
	if err := c.GetJSON(ctx, "/api/session", q, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// LoadSubAgent implements store.Loader.
func (c *Client) LoadSubAgent(ctx context.Context, project, sessionID, agentID string, agentType store.AgentType) (*store.SessionData, error) {
	q := url.Values{
		"project":   {project},
		"sessionId": {sessionID},
		"agentId":   {agentID},
		"type":      {string(agentType)},
	}
	var data store.SessionData
	if err := c.GetJSON(ctx, "/api/subagent", q, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DiscoverAgents implements store.Loader.
func (c *Client) DiscoverAgents(ctx context.Context, project, sessionID string) ([]store.AgentRef, error) {
	q := url.Values{"project": {project}, "sessionId": {sessionID}}
	var resp struct {
		Agents []store.AgentRef `json:"agents"`
	}
	if err := c.GetJSON(ctx, "/api/agents", q, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// Tree fetches a tree reconstructed by the server.
func (c *Client) Tree(ctx context.Context, project, sessionID string) (*loader.Result, error) {
	q := url.Values{"project": {project}, "sessionId": {sessionID}}
	var res loader.Result
	if err := c.GetJSON(ctx, "/api/tree", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
