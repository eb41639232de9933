package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
)

// Handler runs one job. A returned error or a panic counts as a failed
// attempt.
type Handler func(ctx context.Context, job *Job) error

// Consumer runs a fixed pool of workers that pull jobs from one queue.
// Jobs are handled concurrently, so their completion order is not defined.
type Consumer struct {
	queue   Queue
	name    string
	workers int
	handler Handler
	logger  logger.Logger
	metrics *metrics.Metrics

	// retryDelay is how long a worker waits after a Dequeue error.
	retryDelay time.Duration
}

func NewConsumer(
	q Queue,
	name string,
	workers int,
	handler Handler,
	log logger.Logger,
	m *metrics.Metrics,
) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Consumer{
		queue:      q,
		name:       name,
		workers:    workers,
		handler:    handler,
		logger:     log.WithFields(logger.Fields{"component": "consumer", "queue": name}),
		metrics:    m,
		retryDelay: time.Second,
	}
}

// Run blocks until ctx is cancelled or the queue is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Infof("Starting %d workers", c.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			return c.work(gctx, worker)
		})
	}
	err := g.Wait()
	c.logger.Info("Workers stopped")
	return err
}

func (c *Consumer) work(ctx context.Context, worker int) error {
	log := c.logger.WithField("worker", worker)
	for {
		job, err := c.queue.Dequeue(ctx, c.name)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("Failed to dequeue job")
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}
		c.process(ctx, log, job)
	}
}

func (c *Consumer) process(ctx context.Context, log logger.Logger, job *Job) {
	log = log.WithFields(logger.Fields{
		"job_id":     job.ID,
		"kind":       job.Task.Kind,
		"comment_id": job.Task.Comment.ID,
		"attempt":    job.Attempts + 1,
	})

	jobErr := c.run(ctx, job)
	if jobErr != nil {
		log.WithError(jobErr).Warn("Job failed")
	} else {
		log.Debug("Job done")
	}

	// Bookkeeping must finish even when shutdown has started.
	outcome, err := c.queue.Complete(context.WithoutCancel(ctx), job, jobErr)
	if err != nil {
		log.WithError(err).Error("Failed to complete job")
	}
	c.metrics.TasksProcessed.WithLabelValues(c.name, string(outcome)).Inc()
}

func (c *Consumer) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("job_id", job.ID).Errorf("Job panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return c.handler(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
