// Package jobs runs background work (memory extraction, consolidation)
// off the critical path of a chat turn.
//
// A single worker goroutine executes jobs in submission order, which
// preserves the cooperative, non-parallel interleaving of the system:
// background memory work never races itself, only interleaves with
// foreground turns. Failures are logged and swallowed; background tasks
// never surface errors to the chat turn that scheduled them.
package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Queue is a fire-and-forget background task runner.
type Queue struct {
	ch   chan job
	wg   sync.WaitGroup
	once sync.Once
	log  zerolog.Logger
}

// New creates a Queue and starts its worker. ctx cancellation is passed
// through to jobs; in-flight jobs are never interrupted mid-run, they
// observe cancellation through their own ctx checks.
func New(ctx context.Context, log zerolog.Logger) *Queue {
	q := &Queue{
		ch:  make(chan job, 16),
		log: log,
	}
	go q.run(ctx)
	return q
}

func (q *Queue) run(ctx context.Context) {
	for j := range q.ch {
		if err := j.fn(ctx); err != nil {
			q.log.Error().Str("job", j.name).Err(err).Msg("background task failed")
		}
		q.wg.Done()
	}
}

// Submit schedules fn without waiting for it. Safe to call from the
// worker itself (the channel is buffered; a full buffer from a job
// submitting jobs would deadlock, so the buffer is sized well above the
// pipeline's fan-out of one).
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) {
	q.wg.Add(1)
	select {
	case q.ch <- job{name: name, fn: fn}:
	default:
		// Queue full: drop rather than block a chat turn.
		q.log.Warn().Str("job", name).Msg("background queue full, dropping task")
		q.wg.Done()
	}
}

// Wait blocks until every submitted job has finished. Used by tests to
// make fire-and-forget work deterministic.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops the worker after draining submitted jobs.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.wg.Wait()
		close(q.ch)
	})
}
