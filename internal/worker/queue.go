package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/metrics"
)

// Task couples a created job with the raw document bytes it was created for.
type Task struct {
	Job     *jobs.Job
	Payload []byte
}

// Dispatcher schedules a pipeline run for a job, decoupled from the request
// that created it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Queue is the in-process dispatcher: a bounded channel drained by a fixed
// set of goroutines. Jobs accepted before Shutdown are drained; the request
// that enqueued them has long since returned.
type Queue struct {
	pipeline *Pipeline
	workers  int
	timeout  time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue creates and starts the dispatch queue.
func NewQueue(pipeline *Pipeline, opts ...Option) *Queue {
	q := &Queue{
		pipeline: pipeline,
		workers:  4,
		timeout:  10 * time.Minute,
		ch:       make(chan Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		metrics.ActiveWorkers.Set(float64(q.workers))
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				logger.Logger.Info().Int("worker_id", workerID).Msg("Worker started")

				for task := range q.ch {
					metrics.QueueDepth.Set(float64(len(q.ch)))
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.pipeline.Run(ctx, task.Job, task.Payload)
					cancel()
				}

				logger.Logger.Info().Int("worker_id", workerID).Msg("Worker stopped")
			}(i + 1)
		}
	})
}

// Dispatch hands a task to the worker goroutines. The call returns as soon
// as the task is queued; it blocks only when the queue is full. The lock is
// released before the blocking send so a saturated queue never stalls other
// dispatches or shutdown behind it.
func (q *Queue) Dispatch(_ context.Context, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("dispatch queue is shutting down")
	}
	q.inflight.Add(1)
	q.mu.Unlock()
	defer q.inflight.Done()

	select {
	case q.ch <- task:
	default:
		logger.WithJob(task.Job.ID, task.Job.TenantID).Warn().Msg("Queue full, applying backpressure")
		q.ch <- task
	}
	metrics.QueueDepth.Set(float64(len(q.ch)))
	return nil
}

// Shutdown stops accepting tasks and drains the queue, bounded by ctx.
// Dispatches already past the closed check finish their sends before the
// channel closes; the workers keep draining while they do.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.inflight.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		logger.Logger.Warn().Msg("Shutdown interrupted by context")
	case <-done:
		logger.Logger.Info().Msg("Queue drained, shutdown complete")
	}
	metrics.ActiveWorkers.Set(0)
}
