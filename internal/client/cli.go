package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/okian/storyline/internal/domain/types"
	"github.com/okian/storyline/pkg/logger"
)

// File permission constants.
const (
	outputFilePermission = 0o600
)

// Config holds the command line settings of the CLI.
type Config struct {
	BaseURL   string        // Base URL of the service
	Query     string        // Topic to build a timeline for
	Async     bool          // Submit a job and poll instead of waiting on /timeline
	RequestID string        // Optional idempotency key for async jobs
	Poll      time.Duration // Wait between job status checks
	Timeout   time.Duration // Overall deadline
	Format    string        // text, json or yaml
	Output    string        // File to write to; stdout when empty
}

// Validate checks the settings before any request is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return errors.New("missing -query")
	}
	switch strings.ToLower(c.Format) {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %q", ErrFormat, c.Format)
	}
	return nil
}

// Run builds one timeline against the service and renders it.
func Run(ctx context.Context, cfg *Config, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Get().Named("cli")

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cl := New(cfg.BaseURL,
		WithPollInterval(cfg.Poll),
		WithPollHook(func(v types.JobView) {
			log.Info(ctx, "waiting for job", logger.String("job_id", v.JobID), logger.String("status", v.Status))
		}),
	)

	if _, err := cl.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	start := time.Now()
	var resp types.TimelineResponse
	if cfg.Async {
		ack, err := cl.Submit(ctx, cfg.Query, cfg.RequestID)
		if err != nil {
			return fmt.Errorf("submit job: %w", err)
		}
		log.Info(ctx, "job submitted", logger.String("job_id", ack.JobID), logger.String("status", ack.Status))
		view, err := cl.Wait(ctx, ack.JobID)
		if err != nil {
			return err
		}
		resp = types.TimelineResponse{Query: view.Query, Timeline: view.Timeline}
	} else {
		var err error
		if resp, err = cl.Timeline(ctx, cfg.Query); err != nil {
			return fmt.Errorf("generate timeline: %w", err)
		}
	}
	log.Info(ctx, "timeline ready",
		logger.Int("segments", len(resp.Timeline)),
		logger.Duration("took", time.Since(start)),
	)

	w := stdout
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermission)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return Render(w, cfg.Format, resp)
}

// ShowHelp prints usage information for the CLI.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Storyline CLI
=============

Builds a news timeline for a topic using a running storyline service.

Usage:
  storyline-cli -query "topic" [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8000")
  -query string
        Topic to build a timeline for (required)
  -async
        Submit a background job and poll for the result
  -request-id string
        Idempotency key for -async submissions
  -poll duration
        Wait between job status checks (default 2s)
  -timeout duration
        Overall deadline (default 5m)
  -format string
        Output format: text, json or yaml (default "text")
  -output string
        Write the timeline to this file instead of stdout
  -help
        Show this help message

Examples:
  storyline-cli -query "israel iran war"
  storyline-cli -query "fed rate cuts" -async -format yaml -output fed.yaml
`)
}
