package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/netrune/reactor/internal/pool"
)

// AsyncJob pairs a connection key and the original message with the
// PendingResult an AsyncMessageHandler returned for it. The reaper
// polls Result with a bounded wait, re-enqueuing the job at the tail
// of its queue on timeout rather than blocking indefinitely on any one
// slow handler.
type AsyncJob[T any] struct {
	Key         uint64
	Original    Message[T]
	Result      PendingResult
	SubmittedAt time.Time
}

// AsyncJobReaper is the single dedicated goroutine that polls
// outstanding asynchronous handler results. Design note 6 calls for
// exactly one worker here, not a pool: a bounded poll-and-requeue loop
// needs no concurrency to make progress, and a pool would only
// reorder completions without any throughput benefit. Grounded in
// fasthttp's workerPool lifecycle (Start/Stop and a dedicated
// goroutine) generalized from "one goroutine per connection" to "one
// goroutine shared by all in-flight async jobs."
type AsyncJobReaper[T any] struct {
	notifier    Notifier[T]
	logger      Logger
	pollTimeout time.Duration

	jobs *pool.LIFO

	mu    sync.Mutex
	queue []*AsyncJob[T]
	wake  chan struct{}
	done  chan struct{}
}

// NewAsyncJobReaper returns a reaper that delivers results through
// notifier, bounding each poll attempt to pollTimeout.
func NewAsyncJobReaper[T any](notifier Notifier[T], logger Logger, pollTimeout time.Duration) *AsyncJobReaper[T] {
	return &AsyncJobReaper[T]{
		notifier:    notifier,
		logger:      logger,
		pollTimeout: pollTimeout,
		jobs: &pool.LIFO{
			MaxItems:    1 << 16,
			IdleTimeout: 30 * time.Second,
			New:         func() interface{} { return &AsyncJob[T]{} },
		},
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the reaper's worker goroutine. Called once by
// Server.Start.
func (r *AsyncJobReaper[T]) Start() {
	r.jobs.Start()
	go r.run()
}

// Stop signals the worker goroutine to exit once its current poll
// returns. It does not wait for outstanding jobs to drain.
func (r *AsyncJobReaper[T]) Stop() {
	close(r.done)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Submit queues an asynchronous handler's result for polling.
func (r *AsyncJobReaper[T]) Submit(key uint64, original Message[T], result PendingResult) {
	job := r.jobs.Get().(*AsyncJob[T])
	job.Key = key
	job.Original = original
	job.Result = result
	job.SubmittedAt = coarseTimeNow()
	r.push(job)
}

func (r *AsyncJobReaper[T]) push(job *AsyncJob[T]) {
	r.mu.Lock()
	r.queue = append(r.queue, job)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *AsyncJobReaper[T]) pop() *AsyncJob[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	job := r.queue[0]
	r.queue = r.queue[1:]
	return job
}

func (r *AsyncJobReaper[T]) run() {
	for {
		job := r.pop()
		if job == nil {
			select {
			case <-r.done:
				return
			case <-r.wake:
				continue
			}
		}

		select {
		case <-r.done:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.pollTimeout)
		payload, err := job.Result.Wait(ctx)
		cancel()

		switch {
		case err == nil:
			if derr := r.notifier.Notify(job.Key, job.Original, payload); derr != nil {
				r.logger.Printf("reactor: async delivery failed for connection %d: %v", job.Key, derr)
			}
			r.release(job)
		case errors.Is(err, context.DeadlineExceeded):
			r.push(job)
		default:
			inFlight := coarseTimeNow().Sub(job.SubmittedAt)
			r.logger.Printf("reactor: async handler failed for connection %d after %s: %v",
				job.Key, inFlight, fmt.Errorf("%w: %v", ErrAsyncFailure, err))
			r.release(job)
		}
	}
}

func (r *AsyncJobReaper[T]) release(job *AsyncJob[T]) {
	job.Original = Message[T]{}
	job.Result = nil
	job.SubmittedAt = time.Time{}
	r.jobs.Put(job)
}
