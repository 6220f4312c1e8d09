// Package dune fetches Morpho Blue market data from saved analytics
// queries: execute by query ID, poll the execution until it settles, fetch
// result rows. A file TTL cache in front avoids refetching within a run.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0
	DefaultPollInterval = 2 * time.Second
)

// Execution states reported by the API.
const (
	statePending   = "QUERY_STATE_PENDING"
	stateExecuting = "QUERY_STATE_EXECUTING"
	stateCompleted = "QUERY_STATE_COMPLETED"
	stateFailed    = "QUERY_STATE_FAILED"
	stateCancelled = "QUERY_STATE_CANCELLED"
)

// Client calls the analytics HTTP API with retries and backoff.
type Client struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	backoffMult  float64
	pollInterval time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithPollInterval sets the delay between execution status polls.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		backoffMult:  DefaultBackoffMult,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Row is one result row, keyed by column name.
type Row map[string]any

// QueryFailedError reports an execution that settled in a failed or
// cancelled state.
type QueryFailedError struct {
	QueryID     int
	ExecutionID string
	State       string
}

func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("query %d execution %s settled in state %s", e.QueryID, e.ExecutionID, e.State)
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
}

type statusResponse struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
}

type resultsResponse struct {
	State  string `json:"state"`
	Result struct {
		Rows []Row `json:"rows"`
	} `json:"result"`
}

// RunQuery executes a saved query with parameters and blocks until the
// result rows are available.
func (c *Client) RunQuery(ctx context.Context, queryID int, params map[string]string) ([]Row, error) {
	execID, err := c.execute(ctx, queryID, params)
	if err != nil {
		return nil, err
	}

	for {
		state, err := c.status(ctx, execID)
		if err != nil {
			return nil, err
		}

		switch state {
		case stateCompleted:
			return c.results(ctx, execID)
		case stateFailed, stateCancelled:
			return nil, &QueryFailedError{QueryID: queryID, ExecutionID: execID, State: state}
		case statePending, stateExecuting:
		default:
			// Unknown states are treated as still-running; the context
			// deadline bounds the wait.
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// execute starts an execution of a saved query.
func (c *Client) execute(ctx context.Context, queryID int, params map[string]string) (string, error) {
	payload := map[string]any{}
	if len(params) > 0 {
		payload["query_parameters"] = params
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal execute request: %w", err)
	}

	var resp executeResponse
	url := fmt.Sprintf("%s/query/%d/execute", c.baseURL, queryID)
	if err := c.call(ctx, http.MethodPost, url, body, &resp); err != nil {
		return "", fmt.Errorf("execute query %d: %w", queryID, err)
	}
	if resp.ExecutionID == "" {
		return "", fmt.Errorf("execute query %d: empty execution id", queryID)
	}
	return resp.ExecutionID, nil
}

// status fetches the current state of an execution.
func (c *Client) status(ctx context.Context, executionID string) (string, error) {
	var resp statusResponse
	url := fmt.Sprintf("%s/execution/%s/status", c.baseURL, executionID)
	if err := c.call(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return "", fmt.Errorf("execution %s status: %w", executionID, err)
	}
	return resp.State, nil
}

// results fetches the rows of a completed execution.
func (c *Client) results(ctx context.Context, executionID string) ([]Row, error) {
	var resp resultsResponse
	url := fmt.Sprintf("%s/execution/%s/results", c.baseURL, executionID)
	if err := c.call(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("execution %s results: %w", executionID, err)
	}
	return resp.Result.Rows, nil
}

// call performs one HTTP call with retries and exponential backoff.
// 4xx responses other than 429 are not retried.
func (c *Client) call(ctx context.Context, method, url string, body []byte, result any) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Dune-API-Key", c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client errors are not retried
			return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				lastErr = fmt.Errorf("unmarshal response: %w", err)
				continue
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
