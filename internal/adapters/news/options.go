// Package news fetches candidate articles for a query from news providers.
package news

import (
	"net/http"
	"time"

	"github.com/okian/storyline/pkg/httpclient"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/retry"
)

const (
	defaultPageSize = 10
	defaultLanguage = "en"
	defaultTimeout  = 15 * time.Second
)

type options struct {
	endpoint string
	language string
	pageSize int
	client   *http.Client
	retry    retry.Config
	logger   logger.Logger
}

// Option applies a configuration option to an article source.
type Option func(*options)

// WithEndpoint overrides the provider URL.
func WithEndpoint(u string) Option {
	return func(o *options) {
		if u != "" {
			o.endpoint = u
		}
	}
}

// WithLanguage sets the article language filter.
func WithLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithPageSize sets how many articles a search returns at most.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(endpoint, name string, opts []Option) options {
	o := options{
		endpoint: endpoint,
		language: defaultLanguage,
		pageSize: defaultPageSize,
		retry:    retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = httpclient.New(defaultTimeout)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(name)
	}
	return o
}
