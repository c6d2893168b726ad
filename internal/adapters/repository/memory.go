package repository

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/metrics"
)

const defaultCapacity = 1000

// MemoryStore is an in-memory, bounded Store. When full, the oldest
// finished job is evicted first, then the oldest job of any status.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*list.Element
	order    *list.List // front is the newest; values are *model.Job
	capacity int
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory job store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a pending job.
func (s *MemoryStore) Create(_ context.Context, job model.Job) error { //nolint:gocritic // hugeParam: stored by value
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	if s.capacity > 0 && len(s.jobs) >= s.capacity {
		s.evict()
	}

	now := s.now()
	job.Status = model.JobPending
	job.CreatedAt, job.UpdatedAt = now, now
	s.jobs[job.ID] = s.order.PushFront(&job)
	metrics.UpdateJobsStored(len(s.jobs))
	return nil
}

// Get returns a snapshot of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *el.Value.(*model.Job), nil
}

// MarkRunning moves a pending job to running.
func (s *MemoryStore) MarkRunning(_ context.Context, id string) error {
	return s.update(id, func(j *model.Job) error {
		if j.Status != model.JobPending {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, j.Status)
		}
		j.Status = model.JobRunning
		return nil
	})
}

// Complete stores the timeline and marks the job done.
func (s *MemoryStore) Complete(_ context.Context, id string, tl model.Timeline) error {
	return s.update(id, func(j *model.Job) error {
		if j.Status.Finished() {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, j.Status)
		}
		j.Status = model.JobDone
		j.Timeline = tl
		return nil
	})
}

// Fail stores the reason and marks the job failed.
func (s *MemoryStore) Fail(_ context.Context, id, reason string) error {
	return s.update(id, func(j *model.Job) error {
		if j.Status.Finished() {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, j.Status)
		}
		j.Status = model.JobFailed
		j.Error = reason
		return nil
	})
}

// Prune removes finished jobs not updated within ttl.
func (s *MemoryStore) Prune(_ context.Context, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		j := el.Value.(*model.Job)
		if j.Status.Finished() && j.UpdatedAt.Before(cutoff) {
			s.order.Remove(el)
			delete(s.jobs, j.ID)
			removed++
		}
		el = prev
	}
	metrics.UpdateJobsStored(len(s.jobs))
	return removed
}

// Count returns the number of stored jobs.
func (s *MemoryStore) Count(context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CountByStatus returns the number of stored jobs per status.
func (s *MemoryStore) CountByStatus(context.Context) map[model.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.JobStatus]int, 4)
	for _, el := range s.jobs {
		out[el.Value.(*model.Job).Status]++
	}
	return out
}

// Delete removes a job regardless of its status.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.jobs[id]; ok {
		s.order.Remove(el)
		delete(s.jobs, id)
		metrics.UpdateJobsStored(len(s.jobs))
	}
	return nil
}

func (s *MemoryStore) update(id string, fn func(j *model.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	j := el.Value.(*model.Job)
	if err := fn(j); err != nil {
		return err
	}
	j.UpdatedAt = s.now()
	return nil
}

// evict must be called with s.mu held.
func (s *MemoryStore) evict() {
	victim := s.order.Back()
	for el := s.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*model.Job).Status.Finished() {
			victim = el
			break
		}
	}
	if victim == nil {
		return
	}
	s.order.Remove(victim)
	delete(s.jobs, victim.Value.(*model.Job).ID)
}
