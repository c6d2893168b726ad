package main

import (
	"context"
	"fmt"

	"github.com/okian/storyline/internal/adapters/cache"
	"github.com/okian/storyline/internal/adapters/llm"
	"github.com/okian/storyline/internal/adapters/news"
	"github.com/okian/storyline/internal/adapters/page"
	"github.com/okian/storyline/internal/config"
	"github.com/okian/storyline/internal/domain/extract"
	"github.com/okian/storyline/internal/domain/semantic"
	"github.com/okian/storyline/internal/domain/summary"
	"github.com/okian/storyline/internal/domain/temporal"
	"github.com/okian/storyline/internal/domain/timeline"
	"github.com/okian/storyline/pkg/httpclient"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/retry"
)

// components owns the pipeline and the resources it holds open.
type components struct {
	assembler *timeline.Assembler
	llm       *llm.Client
	cache     *cache.Store
}

// Close releases the model client and the cache database.
func (c *components) Close(ctx context.Context) {
	log := logger.Get().Named("main")
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			log.Warn(ctx, "closing llm client", logger.Error(err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			log.Warn(ctx, "closing cache", logger.Error(err))
		}
	}
}

type embedModeler interface {
	EmbedModel() string
}

// buildComponents wires the article source, model client, optional cache
// and pipeline stages described by cfg.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.Get()

	source, err := newArticleSource(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := llm.New(ctx, llm.Config{
		Provider:   cfg.LLMProvider,
		APIKey:     cfg.LLMAPIKey(),
		BaseURL:    cfg.OpenAIBaseURL,
		ChatModel:  cfg.ChatModel,
		EmbedModel: cfg.EmbedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	client := llm.NewClient(provider,
		llm.WithRateLimit(cfg.LLMRPS, cfg.LLMBurst),
		llm.WithRetry(retry.DefaultConfig),
		llm.WithLogger(log.Named("llm")),
	)
	comp := &components{llm: client}

	var embedder semantic.Embedder = client
	extractOpts := []extract.Option{
		extract.WithPageTimeout(cfg.PageTimeout()),
		extract.WithGenerateTimeout(cfg.GenerateTimeout()),
		extract.WithLogger(log.Named("extract")),
	}
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath, cache.WithLogger(log.Named("cache")))
		if err != nil {
			comp.Close(ctx)
			return nil, err
		}
		comp.cache = store

		embedModel := provider.Name()
		if em, ok := provider.(embedModeler); ok {
			embedModel = em.EmbedModel()
		}
		embedder = cache.NewEmbeddings(client, store, embedModel)
		extractOpts = append(extractOpts, extract.WithCache(cache.NewEvents(store, provider.Name())))
	}

	pages := page.New(
		page.WithHTTPClient(httpclient.New(cfg.PageTimeout())),
		page.WithLogger(log.Named("page")),
	)

	assembler, err := timeline.New(timeline.Stages{
		Source:    source,
		Extractor: extract.New(pages, client, extractOpts...),
		Partitioner: temporal.New(
			temporal.WithBuckets(cfg.TemporalBuckets),
			temporal.WithLogger(log.Named("temporal")),
		),
		Clusterer: semantic.New(embedder,
			semantic.WithThreshold(cfg.SubclusterThreshold),
			semantic.WithMinClusterSize(cfg.MinClusterSize),
			semantic.WithEmbedTimeout(cfg.EmbedTimeout()),
			semantic.WithLogger(log.Named("semantic")),
		),
		Summarizer: summary.New(client,
			summary.WithTimeout(cfg.GenerateTimeout()),
			summary.WithLogger(log.Named("summary")),
		),
	},
		timeline.WithExtractConcurrency(cfg.ExtractConcurrency),
		timeline.WithSummarizeConcurrency(cfg.SummarizeConcurrency),
		timeline.WithSearchTimeout(cfg.SearchTimeout()),
		timeline.WithLogger(log.Named("timeline")),
	)
	if err != nil {
		comp.Close(ctx)
		return nil, err
	}
	comp.assembler = assembler
	return comp, nil
}

// newArticleSource returns the configured search provider.
func newArticleSource(cfg *config.Config) (timeline.ArticleSource, error) {
	log := logger.Get().Named("news." + cfg.NewsProvider)
	opts := []news.Option{
		news.WithLanguage(cfg.Language),
		news.WithPageSize(cfg.PageSize),
		news.WithHTTPClient(httpclient.New(cfg.SearchTimeout())),
		news.WithRetry(retry.DefaultConfig),
		news.WithLogger(log),
	}
	switch cfg.NewsProvider {
	case config.NewsProviderRSS:
		return news.NewRSS(append(opts, news.WithEndpoint(cfg.RSSEndpoint))...), nil
	default:
		src, err := news.NewNewsAPI(cfg.NewsAPIKey, append(opts, news.WithEndpoint(cfg.NewsAPIEndpoint))...)
		if err != nil {
			return nil, fmt.Errorf("news provider: %w", err)
		}
		return src, nil
	}
}
