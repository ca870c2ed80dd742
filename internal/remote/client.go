package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldscan/internal/logging"
	"fieldscan/internal/services"
)

const maxErrorBody = 4 << 10

// Client talks to the system of record over HTTP/JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "remote")
	}
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Insert creates a record. An existing id yields ErrDuplicate.
func (c *Client) Insert(ctx context.Context, record Record) error {
	record.Pending = false
	return c.do(ctx, http.MethodPost, "/api/barcodes", record, nil)
}

// Delete removes a record. A missing id yields ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/barcodes/"+url.PathEscape(id), nil, nil)
}

// UpdateCode replaces a record's code. A missing id yields ErrNotFound.
func (c *Client) UpdateCode(ctx context.Context, id, code string) error {
	return c.do(ctx, http.MethodPatch, "/api/barcodes/"+url.PathEscape(id), UpdateCodeRequest{Code: code}, nil)
}

// RowRecords returns the confirmed records of a row.
func (c *Client) RowRecords(ctx context.Context, rowID string) ([]Record, error) {
	var records []Record
	if err := c.do(ctx, http.MethodGet, "/api/rows/"+url.PathEscape(rowID)+"/barcodes", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DailyCount reads a per-user-per-day counter.
func (c *Client) DailyCount(ctx context.Context, userID, date string) (int, bool, error) {
	var out DailyCount
	if err := c.do(ctx, http.MethodGet, dailyPath(userID, date), nil, &out); err != nil {
		return 0, false, err
	}
	return out.Count, out.Exists, nil
}

// PutDailyCount upserts a per-user-per-day counter.
func (c *Client) PutDailyCount(ctx context.Context, userID, date string, count int) error {
	body := DailyCount{UserID: userID, Date: date, Count: count, Exists: true}
	return c.do(ctx, http.MethodPut, dailyPath(userID, date), body, nil)
}

// RecomputeUserTotal asks the server to rebuild a user's all-time total.
func (c *Client) RecomputeUserTotal(ctx context.Context, userID string) (int, error) {
	var out UserTotal
	if err := c.do(ctx, http.MethodPost, "/api/stats/users/"+url.PathEscape(userID)+"/recompute", nil, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// Ping checks the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func dailyPath(userID, date string) string {
	return "/api/stats/daily/" + url.PathEscape(userID) + "/" + url.PathEscape(date)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrRemoteFailure, "remote", method+" "+path, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrRemoteFailure, "remote", method+" "+path, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-Id", id)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrRemoteFailure, "remote", method+" "+path, "request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyFailure(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrRemoteFailure, "remote", method+" "+path, "decode response", err)
	}
	return nil
}

// classifyFailure maps a non-2xx response to an error. Only record-level
// codes from the server become ErrDuplicate or ErrNotFound.
func classifyFailure(method, path string, resp *http.Response) error {
	envelope := readErrorEnvelope(resp.Body)
	switch {
	case resp.StatusCode == http.StatusConflict && envelope.Code == CodeDuplicate:
		return fmt.Errorf("%s %s: %w", method, path, ErrDuplicate)
	case resp.StatusCode == http.StatusNotFound && envelope.Code == CodeNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	return services.Wrap(services.ErrRemoteFailure, "remote", method+" "+path,
		fmt.Sprintf("status %d", resp.StatusCode), errors.New(envelope.Error))
}

func readErrorEnvelope(body io.Reader) ErrorResponse {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ErrorResponse{Error: "empty response body"}
	}
	var envelope ErrorResponse
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return envelope
	}
	return ErrorResponse{Error: strings.TrimSpace(string(data))}
}
