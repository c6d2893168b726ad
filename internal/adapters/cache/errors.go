package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrCorruptVector = errors.New("stored vector is corrupt")
	ErrEmbedCount    = errors.New("embedder returned a different number of vectors")
)
