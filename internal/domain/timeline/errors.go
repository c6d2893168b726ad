package timeline

import "errors"

// Sentinel kinds for timeline generation errors.
var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrMissingStage = errors.New("pipeline stage not configured")
	ErrFetch        = errors.New("fetch articles failed")
	ErrPartition    = errors.New("temporal partitioning failed")
)
