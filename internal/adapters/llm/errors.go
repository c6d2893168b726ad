package llm

import "errors"

// Sentinel kinds for language model errors.
var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrMissingAPIKey   = errors.New("llm api key is required")
	ErrEmptyResponse   = errors.New("llm returned no content")
	ErrEmbedCount      = errors.New("llm returned a different number of embeddings")
)
