// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	eventqueue "github.com/okian/storyline/internal/adapters/mq/queue"
	workerpool "github.com/okian/storyline/internal/adapters/mq/worker"
	repository "github.com/okian/storyline/internal/adapters/repository"
	"github.com/okian/storyline/internal/domain/dedupe"
	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/internal/domain/timeline"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// Generator builds a timeline for a query.
type Generator interface {
	Generate(ctx context.Context, query string) (model.Timeline, error)
}

// CachePruner drops cached rows older than ttl.
type CachePruner interface {
	Prune(ctx context.Context, ttl time.Duration) (int64, error)
}

// Service implements the API dependencies for timeline generation.
type Service struct {
	mu sync.RWMutex

	// Core components
	generator Generator
	jobs      repository.Store
	deduper   dedupe.Deduper
	jobQueue  eventqueue.Queue
	pool      *workerpool.Pool
	scheduler *cron.Cron
	cache     CachePruner

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	jobStoreSize   int
	requestTimeout time.Duration
	jobTTL         time.Duration
	cacheTTL       time.Duration
	pruneSchedule  string
	newID          func() string

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the request id deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJobStoreSize bounds the number of stored jobs.
func WithJobStoreSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.jobStoreSize = size
		}
	}
}

// WithRequestTimeout bounds a whole timeline run, sync or async.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithJobTTL sets how long finished jobs stay queryable.
func WithJobTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTTL = d
		}
	}
}

// WithCache registers the extraction and embedding cache for scheduled pruning.
func WithCache(c CachePruner, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithPruneSchedule sets the cron spec for pruning. Empty disables pruning.
func WithPruneSchedule(spec string) Option {
	return func(s *Service) {
		s.pruneSchedule = strings.TrimSpace(spec)
	}
}

// WithJobStore replaces the default in-memory job store.
func WithJobStore(store repository.Store) Option {
	return func(s *Service) {
		s.jobs = store
	}
}

// WithIDGenerator replaces uuid job ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service around generator.
func New(generator Generator, opts ...Option) *Service {
	s := &Service{
		generator:      generator,
		workerCount:    2,
		queueSize:      64,
		dedupeSize:     10_000,
		jobStoreSize:   1_000,
		requestTimeout: 5 * time.Minute,
		jobTTL:         time.Hour,
		cacheTTL:       7 * 24 * time.Hour,
		pruneSchedule:  "@every 10m",
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the job queue, the workers and the pruning schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.generator == nil {
		return ErrNoGenerator
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting timeline service...")

	if s.jobs == nil {
		s.jobs = repository.NewMemoryStore(repository.WithCapacity(s.jobStoreSize))
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	if s.pruneSchedule != "" {
		s.scheduler = cron.New()
		if _, err := s.scheduler.AddFunc(s.pruneSchedule, func() { s.Prune(context.Background()) }); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, s.pruneSchedule, err)
		}
		s.scheduler.Start()
	}

	s.pool = workerpool.NewPool(s.workerCount, s.jobQueue, s.generator, s.jobs,
		workerpool.WithJobTimeout(s.requestTimeout),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "timeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("pruneSchedule", s.pruneSchedule),
	)
	return nil
}

// Stop gracefully shuts down the service. Queued jobs that no worker
// picked up are lost.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	scheduler, pool := s.scheduler, s.pool
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping timeline service...")

	// Wait outside the lock: a running prune takes a read lock.
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if pool != nil {
		if err := pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "timeline service stopped")
}

// Generate runs the pipeline synchronously within the request timeout.
func (s *Service) Generate(ctx context.Context, query string) (model.Timeline, error) {
	if s.generator == nil {
		return nil, ErrNoGenerator
	}
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.generator.Generate(ctx, query)
}

// Submit queues a timeline job. An empty id gets a fresh uuid. When the id
// was seen before, the stored job is returned with duplicate set.
func (s *Service) Submit(ctx context.Context, id, query string) (job model.Job, duplicate bool, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Job{}, false, timeline.ErrEmptyQuery
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Job{}, false, ErrNotStarted
	}

	id = strings.TrimSpace(id)
	if id == "" {
		id = s.newID()
	}

	if s.deduper.SeenAndRecord(ctx, id) {
		return s.duplicate(ctx, id)
	}

	job = model.Job{ID: id, Query: query}
	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrExists) {
			return s.duplicate(ctx, id)
		}
		s.deduper.Unrecord(ctx, id)
		return model.Job{}, false, fmt.Errorf("create job: %w", err)
	}

	if err := s.jobQueue.Enqueue(ctx, job); err != nil {
		// Roll back so the client can retry with the same id.
		s.deduper.Unrecord(ctx, id)
		_ = s.jobs.Delete(ctx, id)
		if errors.Is(err, eventqueue.ErrFull) {
			s.logger.Warn(ctx, "job queue full, rejecting job", logger.String("job_id", id))
			return model.Job{}, false, fmt.Errorf("%w: %w", ErrQueueFull, err)
		}
		return model.Job{}, false, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobStatus(string(model.JobPending))
	s.logger.Debug(ctx, "job queued", logger.String("job_id", id), logger.String("query", query))

	stored, err := s.jobs.Get(ctx, id)
	if err != nil {
		// Already picked up and evicted; report what was queued.
		job.Status = model.JobPending
		return job, false, nil
	}
	return stored, false, nil
}

func (s *Service) duplicate(ctx context.Context, id string) (model.Job, bool, error) {
	metrics.RecordDuplicateRequest()
	s.logger.Debug(ctx, "duplicate job submission", logger.String("job_id", id))
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		// Evicted from the store while still remembered by the deduper.
		return model.Job{ID: id}, true, nil
	}
	return job, true, nil
}

// Job returns the stored state of a job. Unknown ids wrap repository.ErrNotFound.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Job{}, ErrNotStarted
	}
	return s.jobs.Get(ctx, id)
}

// Prune drops expired finished jobs and, when a cache is configured,
// expired cache rows.
func (s *Service) Prune(ctx context.Context) {
	s.mu.RLock()
	jobs, cache := s.jobs, s.cache
	s.mu.RUnlock()

	if jobs != nil {
		if n := jobs.Prune(ctx, s.jobTTL); n > 0 {
			s.logger.Info(ctx, "pruned finished jobs", logger.Int("count", n))
		}
		metrics.UpdateJobsStored(jobs.Count(ctx))
	}
	if cache != nil {
		n, err := cache.Prune(ctx, s.cacheTTL)
		if err != nil {
			metrics.RecordErrorByComponent("service", "cache_prune")
			s.logger.Warn(ctx, "cache prune failed", logger.Error(err))
			return
		}
		if n > 0 {
			s.logger.Info(ctx, "pruned cache rows", logger.Int("count", int(n)))
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		stored := s.jobs.Count(ctx)

		byStatus := make(map[string]int, 4)
		for status, n := range s.jobs.CountByStatus(ctx) {
			byStatus[string(status)] = n
		}

		stats["queueLength"] = queueLen
		stats["jobsStored"] = stored
		stats["jobsByStatus"] = byStatus
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateJobsStored(stored)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
