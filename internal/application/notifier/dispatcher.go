// Package notifier schedules the follow-up work for a created comment.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/config"
	"go-comment-notifier/internal/infrastructure/eventbus"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
	"go-comment-notifier/internal/infrastructure/queue"
)

// Dispatcher turns each CommentCreated event into two independent queued
// tasks: a notification task and a broadcast task. It never waits for
// either to run.
type Dispatcher struct {
	queue   queue.Queue
	logger  logger.Logger
	metrics *metrics.Metrics
	queues  map[string]bool
}

type DispatcherOption func(*Dispatcher)

// WithQueues limits scheduling to the named queues. A process that
// broadcasts through the direct listener leaves out the websocket queue,
// since nothing would ever drain it.
func WithQueues(names ...string) DispatcherOption {
	return func(d *Dispatcher) {
		d.queues = make(map[string]bool, len(names))
		for _, name := range names {
			d.queues[name] = true
		}
	}
}

func NewDispatcher(q queue.Queue, log logger.Logger, m *metrics.Metrics, opts ...DispatcherOption) *Dispatcher {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	d := &Dispatcher{
		queue:   q,
		logger:  log.WithField("component", "dispatcher"),
		metrics: m,
	}
	WithQueues(config.QueueNotifications, config.QueueWebSocket)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Register(bus *eventbus.Bus) func() {
	return bus.Subscribe(comment.EventCreated, d.Handle)
}

func (d *Dispatcher) Handle(ctx context.Context, event eventbus.Event) error {
	created, ok := event.(comment.Created)
	if !ok {
		return fmt.Errorf("dispatcher: unexpected event %T", event)
	}
	return d.Dispatch(ctx, created.Comment)
}

// Dispatch enqueues the tasks of every scheduled queue. Failing to enqueue
// one does not stop the other; every failure is logged and the joined
// error returned.
func (d *Dispatcher) Dispatch(ctx context.Context, p comment.Payload) error {
	log := d.logger.WithFields(logger.Fields{
		"comment_id": p.ID,
		"news_id":    p.NewsID,
		"user_id":    p.User.ID,
	})
	log.Info("New comment created")

	var errs []error
	for _, s := range []struct {
		queue string
		task  queue.Task
	}{
		{config.QueueNotifications, queue.NewNotificationTask(p)},
		{config.QueueWebSocket, queue.NewBroadcastTask(p)},
	} {
		if !d.queues[s.queue] {
			continue
		}
		if err := d.queue.Enqueue(ctx, s.queue, s.task); err != nil {
			log.WithError(err).WithField("queue", s.queue).Error("Failed to enqueue task")
			errs = append(errs, fmt.Errorf("enqueue %s task: %w", s.queue, err))
			continue
		}
		d.metrics.TasksEnqueued.WithLabelValues(s.queue).Inc()
		log.WithField("queue", s.queue).Debug("Task enqueued")
	}
	return errors.Join(errs...)
}
