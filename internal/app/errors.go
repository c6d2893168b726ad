package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrQueueFull       = errors.New("job queue full")
	ErrNoGenerator     = errors.New("no timeline generator configured")
	ErrInvalidSchedule = errors.New("invalid prune schedule")
)
