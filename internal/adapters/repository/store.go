// Package repository stores asynchronous timeline jobs.
package repository

import (
	"context"
	"time"

	"github.com/okian/storyline/internal/domain/model"
)

// Store provides read/write access to job state.
type Store interface {
	// Create adds a pending job. Returns ErrExists if the id is taken.
	Create(ctx context.Context, job model.Job) error

	// Get returns a snapshot of the job. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (model.Job, error)

	// MarkRunning moves a pending job to running.
	MarkRunning(ctx context.Context, id string) error

	// Complete stores the timeline and marks the job done.
	Complete(ctx context.Context, id string, tl model.Timeline) error

	// Fail stores the reason and marks the job failed.
	Fail(ctx context.Context, id, reason string) error

	// Delete removes a job. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	// Prune removes finished jobs last updated before now minus ttl.
	Prune(ctx context.Context, ttl time.Duration) int

	// Count returns the number of stored jobs.
	Count(ctx context.Context) int

	// CountByStatus returns the number of stored jobs per status.
	CountByStatus(ctx context.Context) map[model.JobStatus]int
}
