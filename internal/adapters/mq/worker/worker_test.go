package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/ladder/internal/adapters/mq/queue"
	worker "github.com/okian/ladder/internal/adapters/mq/worker"
	logging "github.com/okian/ladder/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	errs    map[string]error
	block   chan struct{}
	started chan string
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
}

func (m *mockFetcher) Fetch(ctx context.Context, id string) (map[string]any, error) {
	if m.started != nil {
		m.started <- id
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[id]++
	if err, ok := m.errs[id]; ok {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

func (m *mockFetcher) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func filled(ids ...string) *queue.InMemoryQueue {
	q := queue.NewInMemoryQueue(queue.WithCapacity(len(ids) + 1))
	for _, id := range ids {
		q.Enqueue(context.Background(), queue.Job{SubmissionID: "s-" + id, ReplayID: id})
	}
	return q
}

func TestFetchWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue of three jobs", t, func() {
		ctx := context.Background()
		fetcher := newMockFetcher()
		fetcher.errs["r2"] = errors.New("boom")
		q := filled("r1", "r2", "r3")
		w := worker.NewFetchWorker(q, fetcher, worker.WithName("w"), worker.WithLogger(logging.Discard()))

		convey.Convey("When the queue is closed and the worker runs", func() {
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then every job should have been fetched once, failures included", func() {
				convey.So(fetcher.calls, convey.ShouldResemble, map[string]int{"r1": 1, "r2": 1, "r3": 1})
			})

			convey.Convey("And Done should be closed", func() {
				_, open := <-w.Done()
				convey.So(open, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When Shutdown is called on a running worker", func() {
			go w.Run(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then it should stop without error", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker stuck in a fetch", t, func() {
		fetcher := newMockFetcher()
		fetcher.block = make(chan struct{})
		fetcher.started = make(chan string, 1)
		q := filled("r1")
		w := worker.NewFetchWorker(q, fetcher)
		runCtx, stop := context.WithCancel(context.Background())
		defer stop()
		go w.Run(runCtx)
		<-fetcher.started

		convey.Convey("When Shutdown gets an expired context", func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should report the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
		close(fetcher.block)
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of four workers over fifty jobs", t, func() {
		ctx := context.Background()
		ids := make([]string, 50)
		for i := range ids {
			ids[i] = fmt.Sprintf("r%02d", i)
		}
		fetcher := newMockFetcher()
		pool := worker.NewPool(4, filled(ids...), fetcher, worker.WithLogger(logging.Discard()))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When the pool is drained", func() {
			pool.Start(ctx)
			drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Drain(drainCtx)

			convey.Convey("Then every job should be fetched exactly once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fetcher.total(), convey.ShouldEqual, 50)
				for _, id := range ids {
					convey.So(fetcher.calls[id], convey.ShouldEqual, 1)
				}
			})
		})

		convey.Convey("When the pool is shut down", func() {
			pool.Start(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			convey.Convey("Then it should stop without error", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(fetcher.total(), convey.ShouldBeLessThanOrEqualTo, 50)
			})
		})
	})

	convey.Convey("Given a pool built with no worker count", t, func() {
		pool := worker.NewPool(0, filled(), newMockFetcher())

		convey.Convey("Then it should still have workers", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
