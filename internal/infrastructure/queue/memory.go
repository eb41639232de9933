package queue

import (
	"context"
	"sync"

	"go-comment-notifier/internal/infrastructure/logger"
)

// MemoryQueue keeps one buffered channel per queue name. Jobs do not
// survive a restart.
type MemoryQueue struct {
	opts   Options
	queues map[string]chan *Job
	logger logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(opts Options, log logger.Logger) *MemoryQueue {
	opts = opts.withDefaults()
	queues := make(map[string]chan *Job, len(opts.Names))
	for _, name := range opts.Names {
		queues[name] = make(chan *Job, opts.Buffer)
	}
	return &MemoryQueue{
		opts:   opts,
		queues: queues,
		logger: log.WithFields(logger.Fields{"component": "queue", "driver": "memory"}),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, name string, task Task) error {
	if err := q.opts.check(name); err != nil {
		return err
	}
	return q.push(ctx, newJob(name, task))
}

func (q *MemoryQueue) push(ctx context.Context, job *Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.queues[job.Queue] <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, name string) (*Job, error) {
	if err := q.opts.check(name); err != nil {
		return nil, err
	}

	select {
	case job := <-q.queues[name]:
		return job, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Complete(ctx context.Context, job *Job, jobErr error) (Outcome, error) {
	outcome := decide(job, jobErr, q.opts.MaxAttempts)
	switch outcome {
	case OutcomeRetried:
		retry := *job
		retry.Attempts++
		if err := q.push(ctx, &retry); err != nil {
			return OutcomeFailed, err
		}
	case OutcomeFailed:
		q.logger.WithError(jobErr).WithField("job_id", job.ID).
			Errorf("Job failed after %d attempts, dropping", job.Attempts+1)
	}
	return outcome, nil
}

// Close stops every blocked Enqueue and Dequeue. Buffered jobs are lost.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Len returns the number of buffered jobs on name.
func (q *MemoryQueue) Len(name string) int {
	return len(q.queues[name])
}
