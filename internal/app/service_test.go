package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/storyline/internal/adapters/mq/worker"
	"github.com/okian/storyline/internal/adapters/repository"
	service "github.com/okian/storyline/internal/app"
	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/internal/domain/timeline"
	"github.com/okian/storyline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeGenerator returns one segment per query unless told to fail or block.
type fakeGenerator struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, query string) (model.Timeline, error) {
	g.mu.Lock()
	g.calls++
	err, gate := g.err, g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	ev := model.Event{Text: query, Date: model.NewDate(2025, time.June, 28)}
	return model.Timeline{{
		TimeWindow: model.TimeWindow([]model.Event{ev}),
		Substories: []model.Substory{{Title: "T", Summary: "S", Events: []model.Event{ev}}},
	}}, nil
}

type fakeCache struct {
	mu   sync.Mutex
	ttls []time.Duration
	err  error
}

func (c *fakeCache) Prune(_ context.Context, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls = append(c.ttls, ttl)
	return 3, c.err
}

func sequentialIDs() func() string {
	var n int64
	return func() string { return "job-" + strconv.FormatInt(atomic.AddInt64(&n, 1), 10) }
}

func waitFinished(ctx context.Context, svc *service.Service, id string) model.Job {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Job(ctx, id)
		if err == nil && job.Status.Finished() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := svc.Job(ctx, id)
	return job
}

func waitStatus(ctx context.Context, svc *service.Service, id string, status model.JobStatus) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, err := svc.Job(ctx, id); err == nil && job.Status == status {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("When it has no generator", func() {
			svc := service.New(nil)
			err := svc.Start(ctx)

			Convey("Then start should fail", func() {
				So(errors.Is(err, service.ErrNoGenerator), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When the prune schedule is invalid", func() {
			svc := service.New(&fakeGenerator{}, service.WithPruneSchedule("every tuesday"))
			err := svc.Start(ctx)

			Convey("Then start should fail", func() {
				So(errors.Is(err, service.ErrInvalidSchedule), ShouldBeTrue)
			})
		})

		Convey("When a job is submitted before start", func() {
			svc := service.New(&fakeGenerator{})
			_, _, err := svc.Submit(ctx, "", "ukraine war")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started with custom options", func() {
			svc := service.New(&fakeGenerator{},
				service.WithWorkerCount(3),
				service.WithQueueSize(8),
				service.WithDedupeSize(16),
			)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the stats should reflect them", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 3)
				So(stats["queueSize"], ShouldEqual, 8)
				So(stats["jobsStored"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_Generate(t *testing.T) {
	Convey("Given a service generating synchronously", t, func() {
		ctx := context.Background()

		Convey("When the generator succeeds", func() {
			svc := service.New(&fakeGenerator{})
			tl, err := svc.Generate(ctx, "ukraine war")

			Convey("Then the timeline should be returned", func() {
				So(err, ShouldBeNil)
				So(tl, ShouldHaveLength, 1)
				So(tl[0].TimeWindow, ShouldEqual, "2025/06/28")
			})
		})

		Convey("When the generator outlives the request timeout", func() {
			svc := service.New(&fakeGenerator{gate: make(chan struct{})},
				service.WithRequestTimeout(20*time.Millisecond))
			_, err := svc.Generate(ctx, "slow")

			Convey("Then the deadline should be reported", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestService_Jobs(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		gen := &fakeGenerator{}
		svc := service.New(gen,
			service.WithWorkerCount(1),
			service.WithIDGenerator(sequentialIDs()),
			service.WithPruneSchedule(""),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a job is submitted without a request id", func() {
			job, dup, err := svc.Submit(ctx, "", "  israel hamas  ")

			Convey("Then it should get a generated id and finish", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(job.ID, ShouldEqual, "job-1")
				So(job.Query, ShouldEqual, "israel hamas")

				done := waitFinished(ctx, svc, job.ID)
				So(done.Status, ShouldEqual, model.JobDone)
				So(done.Timeline, ShouldHaveLength, 1)
				So(done.Timeline.Events()[0].Text, ShouldEqual, "israel hamas")
			})
		})

		Convey("When the same request id is submitted twice", func() {
			first, dup1, err1 := svc.Submit(ctx, "req-42", "q")
			second, dup2, err2 := svc.Submit(ctx, "req-42", "q")

			Convey("Then the second submission should be a duplicate of the first", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(dup2, ShouldBeTrue)
				So(second.ID, ShouldEqual, first.ID)
				So(waitFinished(ctx, svc, "req-42").Status, ShouldEqual, model.JobDone)
			})
		})

		Convey("When the query is blank", func() {
			_, _, err := svc.Submit(ctx, "", "   ")

			Convey("Then it should be rejected before queueing", func() {
				So(errors.Is(err, timeline.ErrEmptyQuery), ShouldBeTrue)
				So(svc.GetStats()["jobsStored"], ShouldEqual, 0)
			})
		})

		Convey("When the pipeline fails", func() {
			gen.mu.Lock()
			gen.err = errors.New("fetch articles: upstream 500")
			gen.mu.Unlock()

			job, _, err := svc.Submit(ctx, "", "q")
			So(err, ShouldBeNil)

			Convey("Then the job should be failed with the reason", func() {
				done := waitFinished(ctx, svc, job.ID)
				So(done.Status, ShouldEqual, model.JobFailed)
				So(done.Error, ShouldContainSubstring, "upstream 500")
			})
		})

		Convey("When an unknown job is requested", func() {
			_, err := svc.Job(ctx, "missing")

			Convey("Then it should not be found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service with one worker and a queue of one", t, func() {
		ctx, cancel := context.WithCancel(context.Background())

		gate := make(chan struct{})
		store := repository.NewMemoryStore()
		svc := service.New(&fakeGenerator{gate: gate},
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithPruneSchedule(""),
			service.WithJobStore(store),
		)
		So(svc.Start(ctx), ShouldBeNil)
		// Cancel first so a worker blocked on the gate lets go.
		defer func() {
			cancel()
			svc.Stop()
		}()

		_, _, err := svc.Submit(ctx, "a", "q")
		So(err, ShouldBeNil)
		So(waitStatus(ctx, svc, "a", model.JobRunning), ShouldBeTrue)
		_, _, err = svc.Submit(ctx, "b", "q")
		So(err, ShouldBeNil)

		Convey("When the service stops with a job still queued", func() {
			cancel()
			svc.Stop()
			job, err := store.Get(context.Background(), "b")

			Convey("Then the queued job should be failed rather than left pending", func() {
				So(err, ShouldBeNil)
				So(job.Status, ShouldEqual, model.JobFailed)
				So(job.Error, ShouldEqual, worker.ShutdownReason)
			})
		})

		Convey("When another job arrives", func() {
			_, _, err := svc.Submit(ctx, "c", "q")

			Convey("Then it should be rejected and rolled back", func() {
				So(errors.Is(err, service.ErrQueueFull), ShouldBeTrue)
				_, getErr := svc.Job(ctx, "c")
				So(errors.Is(getErr, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And the same id should be accepted once there is room", func() {
				close(gate)
				So(waitFinished(ctx, svc, "b").Status, ShouldEqual, model.JobDone)

				job, dup, err := svc.Submit(ctx, "c", "q")
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(job.ID, ShouldEqual, "c")
			})
		})
	})
}

func TestService_Prune(t *testing.T) {
	Convey("Given a service with a cache and a short job ttl", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cache := &fakeCache{}
		svc := service.New(&fakeGenerator{},
			service.WithJobTTL(time.Millisecond),
			service.WithCache(cache, 48*time.Hour),
			service.WithPruneSchedule(""),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		job, _, err := svc.Submit(ctx, "", "q")
		So(err, ShouldBeNil)
		So(waitFinished(ctx, svc, job.ID).Status, ShouldEqual, model.JobDone)
		time.Sleep(5 * time.Millisecond)

		Convey("When pruning runs", func() {
			svc.Prune(ctx)

			Convey("Then the finished job and the cache should be pruned", func() {
				_, err := svc.Job(ctx, job.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(cache.ttls, ShouldResemble, []time.Duration{48 * time.Hour})
			})
		})

		Convey("When the cache prune fails", func() {
			cache.err = errors.New("database is locked")

			Convey("Then pruning should not panic", func() {
				So(func() { svc.Prune(ctx) }, ShouldNotPanic)
			})
		})
	})
}
