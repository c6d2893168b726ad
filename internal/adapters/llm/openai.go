package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/okian/storyline/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIChatModel  = "gpt-4o"
	defaultOpenAIEmbedModel = "text-embedding-3-small"
)

// OpenAI is a Provider backed by the OpenAI API or a compatible server.
type OpenAI struct {
	client     *openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg Config) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	o := &OpenAI{
		client:     openai.NewClientWithConfig(oc),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
	}
	if o.chatModel == "" {
		o.chatModel = defaultOpenAIChatModel
	}
	if o.embedModel == "" {
		o.embedModel = defaultOpenAIEmbedModel
	}
	return o
}

// Name implements Provider.
func (o *OpenAI) Name() string { return ProviderOpenAI + ":" + o.chatModel }

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements Provider. Vectors are returned in input order.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.embedModel),
	})
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d for %d texts", ErrEmbedCount, len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Close implements Provider.
func (o *OpenAI) Close() error { return nil }

// EmbedModel returns the embedding model name.
func (o *OpenAI) EmbedModel() string { return o.embedModel }

// classifyOpenAI marks client errors other than rate limiting as permanent.
func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && permanentStatus(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}

func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
