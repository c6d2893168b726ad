package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "STORYLINE_"
	envConfigPath = "STORYLINE_CONFIG"
)

// credentialFallbacks maps config keys to the conventional variables the
// provider SDKs read.
var credentialFallbacks = map[string]string{
	"newsapi_key":    "NEWSAPI_KEY",
	"openai_api_key": "OPENAI_API_KEY",
	"gemini_api_key": "GEMINI_API_KEY",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if STORYLINE_CONFIG is set
//  3. env (prefix STORYLINE_)
//  4. NEWSAPI_KEY, OPENAI_API_KEY and GEMINI_API_KEY for keys still empty
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// STORYLINE_QUEUE_SIZE -> queue_size (flat keys, underscores preserved).
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "cors_origins" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	for key, name := range credentialFallbacks {
		if k.String(key) != "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, name, err)
			}
		}
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges, provider names and the credentials the selected
// providers need.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}

	positive := []struct {
		key string
		val int
	}{
		{"page_size", c.PageSize},
		{"temporal_buckets", c.TemporalBuckets},
		{"subcluster_threshold", c.SubclusterThreshold},
		{"extract_concurrency", c.ExtractConcurrency},
		{"summarize_concurrency", c.SummarizeConcurrency},
		{"search_timeout_ms", c.SearchTimeoutMS},
		{"page_timeout_ms", c.PageTimeoutMS},
		{"generate_timeout_ms", c.GenerateTimeoutMS},
		{"embed_timeout_ms", c.EmbedTimeoutMS},
		{"request_timeout_ms", c.RequestTimeoutMS},
		{"metrics_refresh_ms", c.MetricsRefreshMS},
		{"queue_size", c.QueueSize},
		{"worker_count", c.WorkerCount},
		{"dedupe_size", c.DedupeSize},
		{"job_store_size", c.JobStoreSize},
		{"job_ttl_minutes", c.JobTTLMinutes},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.key, p.val)
		}
	}
	if c.MinClusterSize < 2 {
		return fmt.Errorf("%w: min_cluster_size must be at least 2, got %d", ErrInvalidConfig, c.MinClusterSize)
	}

	switch c.NewsProvider {
	case NewsProviderNewsAPI:
		if strings.TrimSpace(c.NewsAPIKey) == "" {
			return fmt.Errorf("%w: newsapi_key (or NEWSAPI_KEY) is required for news_provider %q",
				ErrMissingCredentials, c.NewsProvider)
		}
	case NewsProviderRSS:
	default:
		return fmt.Errorf("%w: unknown news_provider %q", ErrInvalidConfig, c.NewsProvider)
	}

	switch c.LLMProvider {
	case LLMProviderOpenAI, LLMProviderGemini:
		if strings.TrimSpace(c.LLMAPIKey()) == "" {
			return fmt.Errorf("%w: %s_api_key is required for llm_provider %q",
				ErrMissingCredentials, c.LLMProvider, c.LLMProvider)
		}
	default:
		return fmt.Errorf("%w: unknown llm_provider %q", ErrInvalidConfig, c.LLMProvider)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
