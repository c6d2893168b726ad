package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiChatModel  = "gemini-1.5-flash"
	defaultGeminiEmbedModel = "text-embedding-004"

	// geminiEmbedBatch is the largest batch BatchEmbedContents accepts.
	geminiEmbedBatch = 100
)

// Gemini is a Provider backed by the Google Gemini API.
type Gemini struct {
	client     *genai.Client
	chatModel  string
	embedModel string
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g := &Gemini{client: client, chatModel: cfg.ChatModel, embedModel: cfg.EmbedModel}
	if g.chatModel == "" {
		g.chatModel = defaultGeminiChatModel
	}
	if g.embedModel == "" {
		g.embedModel = defaultGeminiEmbedModel
	}
	return g, nil
}

// Name implements Provider.
func (g *Gemini) Name() string { return ProviderGemini + ":" + g.chatModel }

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	model := g.client.GenerativeModel(g.chatModel)
	model.SetTemperature(temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Embed implements Provider. Texts are sent in batches the API accepts.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatch {
		end := min(start+geminiEmbedBatch, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: %d for %d texts", ErrEmbedCount, len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Close implements Provider.
func (g *Gemini) Close() error { return g.client.Close() }

// EmbedModel returns the embedding model name.
func (g *Gemini) EmbedModel() string { return g.embedModel }
