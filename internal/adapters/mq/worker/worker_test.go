package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/storyline/internal/adapters/mq/queue"
	"github.com/okian/storyline/internal/adapters/mq/worker"
	"github.com/okian/storyline/internal/domain/model"
	logging "github.com/okian/storyline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockGenerator struct {
	mu     sync.Mutex
	errors map[string]error
	panics map[string]bool
	delay  time.Duration
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{errors: map[string]error{}, panics: map[string]bool{}}
}

func (g *mockGenerator) Generate(ctx context.Context, query string) (model.Timeline, error) {
	g.mu.Lock()
	err, panics, delay := g.errors[query], g.panics[query], g.delay
	g.mu.Unlock()

	if panics {
		panic("boom")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return model.Timeline{{TimeWindow: query}}, nil
}

func (g *mockGenerator) setError(query string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errors[query] = err
}

func (g *mockGenerator) setPanic(query string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.panics[query] = true
}

type mockRecorder struct {
	mu       sync.Mutex
	status   map[string]model.JobStatus
	reasons  map[string]string
	timeline map[string]model.Timeline
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		status:   map[string]model.JobStatus{},
		reasons:  map[string]string{},
		timeline: map[string]model.Timeline{},
	}
}

func (r *mockRecorder) MarkRunning(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[id] = model.JobRunning
	return nil
}

func (r *mockRecorder) Complete(_ context.Context, id string, tl model.Timeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[id] = model.JobDone
	r.timeline[id] = tl
	return nil
}

func (r *mockRecorder) Fail(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[id] = model.JobFailed
	r.reasons[id] = reason
	return nil
}

func (r *mockRecorder) get(id string) (model.JobStatus, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[id], r.reasons[id]
}

// waitFor polls until the job reaches a finished status or the deadline passes.
func waitFor(r *mockRecorder, id string) model.JobStatus {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, _ := r.get(id); s.Finished() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s, _ := r.get(id)
	return s
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		gen := newMockGenerator()
		rec := newMockRecorder()
		w := worker.NewInMemoryWorker(q, gen, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds", func() {
			convey.So(q.Enqueue(ctx, model.Job{ID: "j1", Query: "ceasefire"}), convey.ShouldBeNil)

			convey.Convey("Then it should be recorded as done with its timeline", func() {
				convey.So(waitFor(rec, "j1"), convey.ShouldEqual, model.JobDone)
				rec.mu.Lock()
				defer rec.mu.Unlock()
				convey.So(rec.timeline["j1"][0].TimeWindow, convey.ShouldEqual, "ceasefire")
			})
		})

		convey.Convey("When the pipeline fails", func() {
			gen.setError("bad", errors.New("fetch articles failed"))
			convey.So(q.Enqueue(ctx, model.Job{ID: "j2", Query: "bad"}), convey.ShouldBeNil)

			convey.Convey("Then it should be recorded as failed with the reason", func() {
				convey.So(waitFor(rec, "j2"), convey.ShouldEqual, model.JobFailed)
				_, reason := rec.get("j2")
				convey.So(reason, convey.ShouldEqual, "fetch articles failed")
			})
		})

		convey.Convey("When the pipeline panics", func() {
			gen.setPanic("explode")
			convey.So(q.Enqueue(ctx, model.Job{ID: "j3", Query: "explode"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, model.Job{ID: "j4", Query: "after"}), convey.ShouldBeNil)

			convey.Convey("Then the job should fail and the worker keep going", func() {
				convey.So(waitFor(rec, "j3"), convey.ShouldEqual, model.JobFailed)
				convey.So(waitFor(rec, "j4"), convey.ShouldEqual, model.JobDone)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer shutdownCancel()

			convey.Convey("Then it should stop gracefully", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})

			convey.Convey("Then a second shutdown should be a no-op", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(func() { _ = w.Shutdown(shutdownCtx) }, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given a worker with a short job timeout", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue()
		gen := newMockGenerator()
		gen.delay = time.Second
		rec := newMockRecorder()
		w := worker.NewInMemoryWorker(q, gen, rec, worker.WithJobTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job runs too long", func() {
			convey.So(q.Enqueue(ctx, model.Job{ID: "slow", Query: "slow"}), convey.ShouldBeNil)

			convey.Convey("Then it should fail with a deadline error", func() {
				convey.So(waitFor(rec, "slow"), convey.ShouldEqual, model.JobFailed)
				_, reason := rec.get("slow")
				convey.So(reason, convey.ShouldContainSubstring, "deadline")
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a started worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		gen := newMockGenerator()
		rec := newMockRecorder()
		pool := worker.NewPool(3, q, gen, rec)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When several jobs are queued", func() {
			ids := []string{"a", "b", "c", "d", "e"}
			for _, id := range ids {
				convey.So(q.Enqueue(ctx, model.Job{ID: id, Query: id}), convey.ShouldBeNil)
			}

			convey.Convey("Then all of them should finish", func() {
				for _, id := range ids {
					convey.So(waitFor(rec, id), convey.ShouldEqual, model.JobDone)
				}
				convey.So(pool.Size(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer shutdownCancel()

			convey.Convey("Then the queue should close and workers stop", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})

			convey.Convey("Then shutting down again should not panic", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(func() { _ = pool.Shutdown(shutdownCtx) }, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given a single busy worker with jobs waiting behind it", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		gen := newMockGenerator()
		gen.delay = 200 * time.Millisecond
		rec := newMockRecorder()
		pool := worker.NewPool(1, q, gen, rec)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		for _, id := range []string{"busy", "waiting-1", "waiting-2"} {
			convey.So(q.Enqueue(ctx, model.Job{ID: id, Query: id}), convey.ShouldBeNil)
		}
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if s, _ := rec.get("busy"); s == model.JobRunning {
				break
			}
			time.Sleep(time.Millisecond)
		}

		convey.Convey("When the pool shuts down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)

			convey.Convey("Then the running job should finish", func() {
				s, _ := rec.get("busy")
				convey.So(s, convey.ShouldEqual, model.JobDone)
			})

			convey.Convey("Then the waiting jobs should fail instead of staying pending", func() {
				for _, id := range []string{"waiting-1", "waiting-2"} {
					s, reason := rec.get(id)
					convey.So(s, convey.ShouldEqual, model.JobFailed)
					convey.So(reason, convey.ShouldEqual, worker.ShutdownReason)
				}
			})
		})
	})

	convey.Convey("Given a pool with no explicit size", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockGenerator(), newMockRecorder())

		convey.Convey("Then it should use the default size", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 2)
		})
	})
}
