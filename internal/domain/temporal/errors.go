package temporal

import "errors"

// Sentinel kinds for temporal partitioning errors.
var (
	ErrEmptyInput = errors.New("no events to partition")
)
