package model

import "time"

// JobStatus is the lifecycle state of an asynchronous timeline job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Finished reports whether no further transitions will happen.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed
}

// Job is a queued timeline request and, once finished, its outcome.
type Job struct {
	ID        string
	Query     string
	Status    JobStatus
	Timeline  Timeline
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
