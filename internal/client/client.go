// Package client talks to a running storyline service over HTTP.
package client

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

	"github.com/okian/storyline/internal/domain/types"
	"github.com/okian/storyline/pkg/httpclient"
	"github.com/okian/storyline/pkg/retry"
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 2 * time.Second
)

// Client calls the timeline API.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	retry        retry.Config
	onPoll       func(types.JobView)
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithPollInterval sets the wait between job status checks.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.pollInterval = d
		}
	}
}

// WithRetry sets the retry policy for submissions rejected with 429.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) {
		cl.retry = cfg
	}
}

// WithPollHook is called with every non-final job state seen by Wait.
func WithPollHook(fn func(types.JobView)) Option {
	return func(cl *Client) {
		cl.onPoll = fn
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpclient.New(defaultTimeout),
		pollInterval: defaultPollInterval,
		retry:        retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that the service answers on /.
func (c *Client) Health(ctx context.Context) (types.Message, error) {
	var msg types.Message
	err := c.do(ctx, http.MethodGet, "/", nil, &msg, http.StatusOK)
	return msg, err
}

// Timeline generates a timeline synchronously.
func (c *Client) Timeline(ctx context.Context, query string) (types.TimelineResponse, error) {
	var resp types.TimelineResponse
	err := c.do(ctx, http.MethodPost, "/timeline", types.TimelineRequest{Query: query}, &resp, http.StatusOK)
	return resp, err
}

// Submit queues a job, retrying while the service reports backpressure.
func (c *Client) Submit(ctx context.Context, query, requestID string) (types.JobAccepted, error) {
	var ack types.JobAccepted
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPost, "/jobs", types.JobRequest{Query: query, RequestID: requestID},
			&ack, http.StatusAccepted, http.StatusOK)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
	return ack, err
}

// Job reads the state of a job.
func (c *Client) Job(ctx context.Context, id string) (types.JobView, error) {
	var view types.JobView
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &view, http.StatusOK)
	return view, err
}

// Wait polls a job until it is done or failed. A failed job returns its
// view together with an error wrapping ErrJobFailed.
func (c *Client) Wait(ctx context.Context, id string) (types.JobView, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		view, err := c.Job(ctx, id)
		if err != nil {
			return types.JobView{}, err
		}
		if view.Finished() {
			if view.Status == "failed" {
				return view, fmt.Errorf("%w: %s: %s", ErrJobFailed, id, view.Error)
			}
			return view, nil
		}
		if c.onPoll != nil {
			c.onPoll(view)
		}

		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, want ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	for _, code := range want {
		if resp.StatusCode == code {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		apiErr.Code, apiErr.Message = payload.Code, payload.Message
	}
	return apiErr
}
