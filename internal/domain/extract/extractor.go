// Package extract pulls dated events out of news articles with a language model.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

const (
	defaultTemperature     = 0.2
	defaultPageTimeout     = 20 * time.Second
	defaultGenerateTimeout = 60 * time.Second

	systemPrompt = "You are an assistant specialized in extracting structured data from text. " +
		"When given an input news article or snippet, output a JSON array of objects, " +
		"each with event and date fields. " +
		"You must include an accurate year, the month and day may be estimated. " +
		"Dates must be in YYYY/MM/DD format. " +
		"Do not output any other text."

	userPromptTemplate = "Publish Date:\n\n%s\n\nTitle:\n\n%s\n\nText:\n\n%s\n"
)

// PageFetcher returns the readable text of a web page.
type PageFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Completer sends a prompt to a text generation model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Cache memoises extraction results per article URL.
type Cache interface {
	LoadEvents(ctx context.Context, url string) ([]model.Event, bool, error)
	StoreEvents(ctx context.Context, url string, events []model.Event) error
}

// Extractor turns one article into the events it reports.
type Extractor struct {
	pages           PageFetcher
	completer       Completer
	cache           Cache
	temperature     float32
	pageTimeout     time.Duration
	generateTimeout time.Duration
	logger          logger.Logger
}

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithCache enables the extraction cache.
func WithCache(c Cache) Option {
	return func(e *Extractor) {
		e.cache = c
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(e *Extractor) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

// WithPageTimeout bounds each page fetch.
func WithPageTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.pageTimeout = d
		}
	}
}

// WithGenerateTimeout bounds each generation call.
func WithGenerateTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.generateTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Extractor.
func New(pages PageFetcher, completer Completer, opts ...Option) *Extractor {
	e := &Extractor{
		pages:           pages,
		completer:       completer,
		temperature:     defaultTemperature,
		pageTimeout:     defaultPageTimeout,
		generateTimeout: defaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("extract")
	}
	return e
}

// Extract fetches the article page and asks the model for its dated events.
// A page without text or a reply that is not valid JSON yields no events and
// no error. Every event carries the article URL.
func (e *Extractor) Extract(ctx context.Context, article model.Article) ([]model.Event, error) {
	if e.cache != nil {
		events, ok, err := e.cache.LoadEvents(ctx, article.URL)
		switch {
		case err != nil:
			e.logger.Warn(ctx, "extraction cache read failed", logger.String("url", article.URL), logger.Error(err))
		case ok:
			metrics.RecordCacheHit("events")
			return events, nil
		default:
			metrics.RecordCacheMiss("events")
		}
	}

	text, err := e.pageText(ctx, article.URL)
	if err != nil {
		metrics.RecordExtractionFailure("page")
		return nil, fmt.Errorf("%w: %s: %w", ErrPageText, article.URL, err)
	}
	if strings.TrimSpace(text) == "" {
		metrics.RecordExtractionFailure("empty_page")
		e.logger.Debug(ctx, "page has no readable text", logger.String("url", article.URL))
		return nil, nil
	}

	reply, err := e.generate(ctx, article, text)
	if err != nil {
		metrics.RecordExtractionFailure("generate")
		return nil, fmt.Errorf("%w: %s: %w", ErrGenerate, article.URL, err)
	}

	events, dropped, ok := ParseEvents(reply, article.URL)
	if !ok {
		metrics.RecordExtractionFailure("parse")
		e.logger.Warn(ctx, "model reply is not a JSON event list",
			logger.String("url", article.URL),
			logger.Int("reply_bytes", len(reply)),
		)
		return nil, nil
	}
	if dropped > 0 {
		e.logger.Debug(ctx, "dropped events without text or readable date",
			logger.String("url", article.URL),
			logger.Int("dropped", dropped),
		)
	}
	metrics.RecordEventsExtracted(len(events))

	if e.cache != nil {
		if err := e.cache.StoreEvents(ctx, article.URL, events); err != nil {
			e.logger.Warn(ctx, "extraction cache write failed", logger.String("url", article.URL), logger.Error(err))
		}
	}
	return events, nil
}

func (e *Extractor) pageText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.pageTimeout)
	defer cancel()
	return e.pages.Text(ctx, url)
}

func (e *Extractor) generate(ctx context.Context, article model.Article, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.generateTimeout)
	defer cancel()
	prompt := fmt.Sprintf(userPromptTemplate, article.PublishedAt, article.Title, text)
	return e.completer.Complete(ctx, systemPrompt, prompt, e.temperature)
}
