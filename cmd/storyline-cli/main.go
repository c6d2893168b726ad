package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/storyline/internal/client"
	"github.com/okian/storyline/pkg/logger"
)

// Default configuration constants.
const (
	defaultPoll    = 2 * time.Second
	defaultTimeout = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8000", "Base URL of the service")
		query     = flag.String("query", "", "Topic to build a timeline for")
		async     = flag.Bool("async", false, "Submit a background job and poll for the result")
		requestID = flag.String("request-id", "", "Idempotency key for -async submissions")
		poll      = flag.Duration("poll", defaultPoll, "Wait between job status checks")
		timeout   = flag.Duration("timeout", defaultTimeout, "Overall deadline")
		format    = flag.String("format", client.FormatText, "Output format: text, json or yaml")
		output    = flag.String("output", "", "Write the timeline to this file instead of stdout")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		client.ShowHelp(os.Stdout)
		return
	}

	// Progress goes to stderr so stdout carries only the timeline.
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &client.Config{
		BaseURL:   *baseURL,
		Query:     *query,
		Async:     *async,
		RequestID: *requestID,
		Poll:      *poll,
		Timeout:   *timeout,
		Format:    *format,
		Output:    *output,
	}
	if err := client.Run(ctx, cfg, os.Stdout); err != nil {
		os.Stderr.WriteString("storyline: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
