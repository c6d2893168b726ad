package llm

import (
	"context"
	"time"

	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
	"github.com/okian/storyline/pkg/retry"
	"golang.org/x/time/rate"
)

// Client wraps a Provider with rate limiting, retries and metrics.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	retry    retry.Config
	logger   logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithRateLimit allows rps calls per second with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps provider.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		retry:    retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("llm")
	}
	return c
}

// Name returns the wrapped provider's name.
func (c *Client) Name() string { return c.provider.Name() }

// Complete generates text for prompt.
func (c *Client) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	var out string
	err := c.call(ctx, "complete", func(ctx context.Context) error {
		text, err := c.provider.Complete(ctx, system, prompt, temperature)
		out = text
		return err
	})
	return out, err
}

// Embed returns one vector per text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	err := c.call(ctx, "embed", func(ctx context.Context) error {
		v, err := c.provider.Embed(ctx, texts)
		out = v
		return err
	})
	return out, err
}

// Close releases the provider.
func (c *Client) Close() error { return c.provider.Close() }

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	started := time.Now()
	attempt := 0
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.Debug(ctx, "llm call failed",
				logger.String("op", op),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		}
		return err
	})
	metrics.RecordExternalCall("llm", op, time.Since(started), err)
	return err
}
