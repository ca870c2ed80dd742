package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrAgentUnavailable reports that no agent answered on the configured address.
var ErrAgentUnavailable = errors.New("agent not reachable")

// Client talks to a running agent.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for an agent bound to bind (host:port).
func NewClient(bind string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := strings.TrimSpace(bind)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Status fetches the agent status.
func (c *Client) Status(ctx context.Context) (*AgentStatus, error) {
	var out AgentStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue lists queued mutations, optionally filtered by status.
func (c *Client) Queue(ctx context.Context, statuses ...string) ([]QueueItem, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, s := range statuses {
			values.Add("status", s)
		}
		path += "?" + values.Encode()
	}
	var out QueueListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Sync asks the agent to run a pass and waits for its outcome.
func (c *Client) Sync(ctx context.Context) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MergedRow fetches a row's display records.
func (c *Client) MergedRow(ctx context.Context, rowID string) (*MergedRow, error) {
	var out MergedRow
	if err := c.do(ctx, http.MethodGet, "/api/rows/"+url.PathEscape(rowID)+"/merged", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("agent %s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("agent %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
