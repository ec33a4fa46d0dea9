package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stax-io/stax/internal/logging"
)

// ClientOptions configures the HTTP completion client.
type ClientOptions struct {
	Endpoint   string
	Model      string // forwarded to the service, optional
	APIKey     string // bearer token, optional
	MaxRetries int    // bounded; 0 means DefaultRetryMax
	Timeout    time.Duration
}

// Client calls a completion service over HTTP. The wire shape is a single
// POST of the Request plus an optional model hint; anything provider-specific
// lives behind the endpoint.
type Client struct {
	opts   ClientOptions
	policy *RetryPolicy
	http   *http.Client
}

// NewClient builds a client for the given endpoint.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	policy := DefaultRetryPolicy()
	if opts.MaxRetries > 0 {
		policy.MaxRetries = opts.MaxRetries
	}
	return &Client{
		opts:   opts,
		policy: policy,
		http:   &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	Model      string         `json:"model,omitempty"`
	Schema     []FieldSpec    `json:"schema"`
	Context    map[string]any `json:"context"`
	AlreadySet map[string]any `json:"alreadySet"`
}

type wireResponse struct {
	Fields map[string]any `json:"fields"`
	Error  string         `json:"error,omitempty"`
}

// Complete implements Completer. Transport failures are retried a bounded
// number of times and then surfaced as UnavailableError.
func (c *Client) Complete(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(wireRequest{
		Model:      c.opts.Model,
		Schema:     req.Schema,
		Context:    req.Context,
		AlreadySet: req.AlreadySet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	var result *Result
	err = RetryWithBackoff(ctx, c.policy, func() error {
		res, callErr := c.call(ctx, body)
		if callErr != nil {
			return callErr
		}
		result = res
		return nil
	}, IsTransientError)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.Debug("completion call", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion endpoint returned %s: %s", resp.Status, truncate(raw, 200))
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("completion endpoint error: %s", wire.Error)
	}
	return &Result{Fields: wire.Fields}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
