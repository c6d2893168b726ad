package summary

import "errors"

// Sentinel kinds for summarization errors.
var (
	ErrNoEvents  = errors.New("no events to summarize")
	ErrSummarize = errors.New("summarize events failed")
)
