// Package page downloads web pages and reduces them to readable text.
package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/okian/storyline/pkg/httpclient"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

const (
	defaultMaxBytes  = 2 << 20
	defaultMaxChars  = 20000
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; storyline/1.0; +https://github.com/okian/storyline)"

	// minReadableChars is the shortest readability result trusted over the paragraph fallback.
	minReadableChars = 200
)

// fallbackSelectors are tried in order when readability finds too little.
var fallbackSelectors = []string{"article p", "main p", "p"}

// Fetcher returns the main text of a web page.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	maxChars  int
	logger    logger.Logger
}

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithMaxChars caps the length of the returned text.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxChars = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent: defaultUserAgent,
		maxBytes:  defaultMaxBytes,
		maxChars:  defaultMaxChars,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = httpclient.New(defaultTimeout)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("page")
	}
	return f
}

// Text downloads rawURL and returns its readable text. Readability runs
// first; when it finds little, paragraphs are collected directly.
func (f *Fetcher) Text(ctx context.Context, rawURL string) (string, error) {
	started := time.Now()
	text, err := f.text(ctx, rawURL)
	metrics.RecordExternalCall("page", "fetch", time.Since(started), err)
	return text, err
}

func (f *Fetcher) text(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrBadURL, rawURL)
	}

	body, err := f.download(ctx, u)
	if err != nil {
		return "", err
	}

	var text string
	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil {
		text = normalize(article.TextContent)
	} else {
		f.logger.Debug(ctx, "readability failed", logger.String("url", rawURL), logger.Error(err))
	}
	if len(text) < minReadableChars {
		if fallback := paragraphs(body); len(fallback) > len(text) {
			text = fallback
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoContent, rawURL)
	}
	return truncate(text, f.maxChars), nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, ct)
	}
	return io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
}

// paragraphs joins the text of the first selector that matches anything.
func paragraphs(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, header, footer, aside").Remove()
	for _, sel := range fallbackSelectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := normalize(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

// normalize collapses runs of whitespace inside lines and drops blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}
