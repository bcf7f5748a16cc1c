// Package worker runs replay fetches concurrently so a run does not wait on
// the replay service one reference at a time.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Prefetch results recorded per job.
const (
	resultOK    = "ok"
	resultError = "error"
)

// Fetcher loads one replay payload.
type Fetcher interface {
	Fetch(ctx context.Context, replayID string) (map[string]any, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker consumes fetch jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, the queue is
	// drained or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// FetchWorker implements Worker by calling a Fetcher for every job.
type FetchWorker struct {
	queue   Queue
	fetcher Fetcher
	name    string

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewFetchWorker creates a new worker with configuration options.
func NewFetchWorker(q Queue, f Fetcher, opts ...Option) *FetchWorker {
	w := &FetchWorker{
		queue:    q,
		fetcher:  f,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *FetchWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown stops the worker.
func (w *FetchWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *FetchWorker) Done() <-chan struct{} {
	return w.done
}

// process fetches one replay. Failures are only logged: the resolver meets
// the same reference later and reports it against the submission.
func (w *FetchWorker) process(ctx context.Context, job queue.Job) {
	if _, err := w.fetcher.Fetch(ctx, job.ReplayID); err != nil {
		metrics.RecordPrefetch(resultError)
		w.logger.Debug(ctx, "prefetch failed",
			logger.String("submission", job.SubmissionID),
			logger.String("replay", job.ReplayID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordPrefetch(resultOK)
}

// Pool manages multiple workers reading one queue.
type Pool struct {
	workers []*FetchWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. Options apply to every
// worker; each is named worker-<n>.
func NewPool(workerCount int, q Queue, f Fetcher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*FetchWorker, workerCount),
		queue:   q,
		logger:  logger.Discard(),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewFetchWorker(q, f, workerOpts...)
	}
	pool.logger = pool.workers[0].logger
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Drain closes the queue and waits until the workers have emptied it.
func (p *Pool) Drain(ctx context.Context) error {
	p.closeQueue(ctx)
	for _, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return fmt.Errorf("drain: %w", ctx.Err())
		}
	}
	return nil
}

// Shutdown closes the queue and stops every worker without waiting for the
// remaining jobs.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeQueue(ctx)

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pool) closeQueue(ctx context.Context) {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
}
