package semantic

import "errors"

// Sentinel kinds for semantic clustering errors.
var (
	ErrEmbeddingMismatch = errors.New("embedding count or dimension mismatch")
	ErrEmbed             = errors.New("embed events failed")
)
