// Package worker runs queued timeline jobs in the background.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	defaultJobTimeout   = 5 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// ShutdownReason is recorded on jobs still queued when the pool stops.
const ShutdownReason = "service shutting down"

// Job is what workers read off the queue.
type Job = model.Job

// Generator builds a timeline for a query.
type Generator interface {
	Generate(ctx context.Context, query string) (model.Timeline, error)
}

// Recorder stores job state transitions.
type Recorder interface {
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, tl model.Timeline) error
	Fail(ctx context.Context, id, reason string) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	generator  Generator
	recorder   Recorder
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, generator Generator, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		generator:  generator,
		recorder:   recorder,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		// Stop requests win over waiting jobs.
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current job. It is safe to call
// more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process runs one job and records its outcome. A panic in the pipeline
// fails the job instead of the worker.
func (w *InMemoryWorker) process(ctx context.Context, job Job) (err error) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.recorder.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}
	metrics.RecordJobStatus(string(model.JobRunning))

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			err = w.fail(ctx, job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	tl, genErr := w.generator.Generate(jobCtx, job.Query)
	if genErr != nil {
		metrics.RecordErrorByComponent("worker", "generate_error")
		w.logger.Warn(ctx, "job failed",
			logger.String("job_id", job.ID),
			logger.String("query", job.Query),
			logger.Error(genErr),
		)
		return w.fail(ctx, job.ID, genErr.Error())
	}

	if err := w.recorder.Complete(ctx, job.ID, tl); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	metrics.RecordJobStatus(string(model.JobDone))
	w.logger.Info(ctx, "job done",
		logger.String("job_id", job.ID),
		logger.Int("segments", len(tl)),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

func (w *InMemoryWorker) fail(ctx context.Context, id, reason string) error {
	metrics.RecordJobStatus(string(model.JobFailed))
	if err := w.recorder.Fail(ctx, id, reason); err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// Pool manages multiple workers reading from one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	recorder Recorder
	logger   logger.Logger
}

// NewPool creates a worker pool. Options apply to every worker.
func NewPool(workerCount int, queue Queue, generator Generator, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		recorder: recorder,
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, generator, recorder, workerOpts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Shutdown closes the queue, waits for the workers to finish their
// current jobs and fails the jobs nobody picked up with ShutdownReason.
// It is safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, w := range p.workers {
		w.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)

	if n := p.failWaiting(ctx); n > 0 {
		p.logger.Warn(ctx, "failed jobs left in the queue", logger.Int("count", n))
	}
	return nil
}

// failWaiting marks every job still queued as failed. It never blocks.
func (p *Pool) failWaiting(ctx context.Context) int {
	jobs := p.queue.Dequeue(ctx)
	n := 0
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return n
			}
			metrics.RecordQueueDequeue()
			metrics.RecordJobStatus(string(model.JobFailed))
			if err := p.recorder.Fail(ctx, job.ID, ShutdownReason); err != nil {
				p.logger.Error(ctx, "error failing queued job", logger.String("job_id", job.ID), logger.Error(err))
			}
			n++
		default:
			return n
		}
	}
}
