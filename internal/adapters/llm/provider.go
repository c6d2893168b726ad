// Package llm talks to hosted language models for text generation and embeddings.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Provider is a hosted model that can generate text and embed texts.
type Provider interface {
	// Name identifies the provider and models, e.g. "openai:gpt-4o".
	Name() string
	Complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// Config selects and configures a provider.
type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// New builds the configured provider. Model names fall back to the
// provider's defaults when empty.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, cfg.Provider)
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
