// Package summary turns a cluster of events into a headline and a paragraph.
package summary

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
	defaultTemperature = 0.3
	defaultTimeout     = 60 * time.Second

	systemPrompt = "You are an assistant specialized in understanding and summarizing news events."

	userPromptTemplate = `Summarize the following related news events.

Reply with exactly two lines and nothing else:
Title: <a headline of at most ten words>
Summary: <one paragraph>

Events:
%s`
)

// Completer sends a prompt to a text generation model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Summarizer asks a language model for a title and summary of a cluster.
type Summarizer struct {
	completer   Completer
	temperature float32
	timeout     time.Duration
	logger      logger.Logger
}

// Option applies a configuration option to the Summarizer.
type Option func(*Summarizer)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(s *Summarizer) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Summarizer.
func New(completer Completer, opts ...Option) *Summarizer {
	s := &Summarizer{
		completer:   completer,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("summary")
	}
	return s
}

// Bullets renders events as "- <date> — <text>" lines in the given order.
func Bullets(events []model.Event) string {
	var b strings.Builder
	for i, e := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s — %s", e.Date, e.Text)
	}
	return b.String()
}

// Summarize makes one generation call for events, which must already be in
// date order. Transport failures are returned; a response without the
// expected labels yields empty fields instead of an error.
func (s *Summarizer) Summarize(ctx context.Context, events []model.Event) (model.Summary, error) {
	if len(events) == 0 {
		return model.Summary{}, ErrNoEvents
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(userPromptTemplate, Bullets(events))
	text, err := s.completer.Complete(ctx, systemPrompt, prompt, s.temperature)
	if err != nil {
		return model.Summary{}, fmt.Errorf("%w: %w", ErrSummarize, err)
	}

	out := ParseSummary(text)
	if out.Title == "" {
		metrics.RecordSummaryLabelMissing("title")
		s.logger.Warn(ctx, "summary response has no title line", logger.Int("events", len(events)))
	}
	if out.Summary == "" {
		metrics.RecordSummaryLabelMissing("summary")
		s.logger.Warn(ctx, "summary response has no summary line", logger.Int("events", len(events)))
	}
	return out, nil
}
