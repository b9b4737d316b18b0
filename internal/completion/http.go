package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxRetries  = 2
	defaultBackoffBase = 500 * time.Millisecond
)

// Ensure HTTPClient implements the Completer interface.
var _ Completer = (*HTTPClient)(nil)

// HTTPOption is a functional option for configuring an [HTTPClient].
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-attempt request timeout. Default: 15s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried after
// the first attempt. Default: 2.
func WithMaxRetries(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithHTTPClient replaces the underlying http.Client (for tests).
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// HTTPClient implements [Completer] against an HTTP endpoint: one POST with
// the JSON-encoded [Record] per completion.
//
// Transient failures (network errors, 5xx) are retried with exponential
// backoff up to the configured attempt budget. 4xx responses are terminal
// and never retried.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
}

// NewHTTPClient returns an [HTTPClient] posting to endpoint.
func NewHTTPClient(endpoint string, opts ...HTTPOption) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("completion: endpoint must not be empty")
	}
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: defaultTimeout},
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Complete implements [Completer].
func (c *HTTPClient) Complete(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("completion: marshal record: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			slog.Debug("completion: retrying",
				"task_id", rec.TaskID,
				"attempt", attempt,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("completion: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
		}

		retryable, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("completion: retries exhausted: %w", lastErr)
}

// post performs one attempt. The bool reports whether the failure is
// transient and worth retrying.
func (c *HTTPClient) post(ctx context.Context, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("completion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Network error or timeout, transient.
		return true, fmt.Errorf("completion: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("completion: server error: %s", resp.Status)
	default:
		return false, fmt.Errorf("completion: rejected: %s", resp.Status)
	}
}
