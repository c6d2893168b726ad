// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Keys are flat and carry koanf tags; the same names are used in YAML and,
//     upper-cased with the STORYLINE_ prefix, in the environment.
//   - Durations are stored as integer milliseconds (or minutes/hours where the
//     key says so) and exposed through helper methods.
package config

import "time"

// Provider names.
const (
	NewsProviderNewsAPI = "newsapi"
	NewsProviderRSS     = "rss"

	LLMProviderOpenAI = "openai"
	LLMProviderGemini = "gemini"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`

	// MetricsEnabled turns Prometheus recording on or off; /healthz is served either way.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshMS is how often system and job gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`

	// NewsProvider selects the article source: newsapi or rss.
	NewsProvider    string `koanf:"news_provider"`
	NewsAPIKey      string `koanf:"newsapi_key"`
	NewsAPIEndpoint string `koanf:"newsapi_endpoint"`
	RSSEndpoint     string `koanf:"rss_endpoint"`
	Language        string `koanf:"language"`
	PageSize        int    `koanf:"page_size"`

	// LLMProvider selects the model host: openai or gemini.
	LLMProvider   string `koanf:"llm_provider"`
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIBaseURL string `koanf:"openai_base_url"`
	GeminiAPIKey  string `koanf:"gemini_api_key"`
	// ChatModel and EmbedModel fall back to the provider defaults when empty.
	ChatModel  string  `koanf:"chat_model"`
	EmbedModel string  `koanf:"embed_model"`
	LLMRPS     float64 `koanf:"llm_rps"`
	LLMBurst   int     `koanf:"llm_burst"`

	// TemporalBuckets is K for the time partitioner.
	TemporalBuckets int `koanf:"temporal_buckets"`
	// SubclusterThreshold is the bucket size from which semantic clustering runs.
	SubclusterThreshold  int `koanf:"subcluster_threshold"`
	MinClusterSize       int `koanf:"min_cluster_size"`
	ExtractConcurrency   int `koanf:"extract_concurrency"`
	SummarizeConcurrency int `koanf:"summarize_concurrency"`

	SearchTimeoutMS   int `koanf:"search_timeout_ms"`
	PageTimeoutMS     int `koanf:"page_timeout_ms"`
	GenerateTimeoutMS int `koanf:"generate_timeout_ms"`
	EmbedTimeoutMS    int `koanf:"embed_timeout_ms"`
	RequestTimeoutMS  int `koanf:"request_timeout_ms"`

	// QueueSize bounds the async job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the request id deduplication cache.
	DedupeSize    int `koanf:"dedupe_size"`
	JobStoreSize  int `koanf:"job_store_size"`
	JobTTLMinutes int `koanf:"job_ttl_minutes"`
	// PruneSchedule is a cron spec for pruning finished jobs and cache rows.
	PruneSchedule string `koanf:"prune_schedule"`

	// CachePath is the SQLite file for extracted events and embeddings.
	// Empty disables the cache.
	CachePath     string `koanf:"cache_path"`
	CacheTTLHours int    `koanf:"cache_ttl_hours"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":8000",
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},

		MetricsEnabled:   true,
		MetricsRefreshMS: 10_000,

		NewsProvider: NewsProviderNewsAPI,
		Language:     "en",
		PageSize:     10,

		LLMProvider: LLMProviderOpenAI,
		LLMRPS:      5,
		LLMBurst:    5,

		TemporalBuckets:      4,
		SubclusterThreshold:  5,
		MinClusterSize:       2,
		ExtractConcurrency:   1,
		SummarizeConcurrency: 1,

		SearchTimeoutMS:   15_000,
		PageTimeoutMS:     20_000,
		GenerateTimeoutMS: 60_000,
		EmbedTimeoutMS:    30_000,
		RequestTimeoutMS:  300_000,

		QueueSize:     64,
		WorkerCount:   2,
		DedupeSize:    10_000,
		JobStoreSize:  1_000,
		JobTTLMinutes: 60,
		PruneSchedule: "@every 10m",

		CacheTTLHours: 24 * 7,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// MetricsRefresh is the gauge refresh period.
func (c *Config) MetricsRefresh() time.Duration { return ms(c.MetricsRefreshMS) }

// SearchTimeout bounds one article search.
func (c *Config) SearchTimeout() time.Duration { return ms(c.SearchTimeoutMS) }

// PageTimeout bounds one page download.
func (c *Config) PageTimeout() time.Duration { return ms(c.PageTimeoutMS) }

// GenerateTimeout bounds one text generation call.
func (c *Config) GenerateTimeout() time.Duration { return ms(c.GenerateTimeoutMS) }

// EmbedTimeout bounds one embedding batch.
func (c *Config) EmbedTimeout() time.Duration { return ms(c.EmbedTimeoutMS) }

// RequestTimeout bounds a whole timeline run.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// JobTTL is how long finished jobs stay queryable.
func (c *Config) JobTTL() time.Duration { return time.Duration(c.JobTTLMinutes) * time.Minute }

// CacheTTL is how long cached extractions and embeddings are kept.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLHours) * time.Hour }

// LLMAPIKey returns the key of the selected LLM provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == LLMProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}
