package broadcast

import (
	"context"
	"errors"
	"fmt"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
	"go-comment-notifier/internal/infrastructure/queue"
)

// ErrServerAbsent means no socket server is running in this process, so
// there is nobody to deliver to.
var ErrServerAbsent = errors.New("socket server is not running")

// Locator finds the running socket server of this process. *hub.Slot
// implements it.
type Locator interface {
	Current() (*hub.Server, bool)
}

// DeliveryWorker runs broadcast tasks taken from the websocket queue.
type DeliveryWorker struct {
	locator Locator
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewDeliveryWorker(locator Locator, log logger.Logger, m *metrics.Metrics) *DeliveryWorker {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &DeliveryWorker{
		locator: locator,
		logger:  log.WithField("component", "delivery_worker"),
		metrics: m,
	}
}

// Deliver pushes one comment to every connection of the running server.
func (w *DeliveryWorker) Deliver(ctx context.Context, p comment.Payload) (hub.Report, error) {
	srv, ok := w.locator.Current()
	if !ok {
		return hub.Report{}, ErrServerAbsent
	}

	log := w.logger.WithField("comment_id", p.ID)
	log.Infof("Delivering comment to %d connections", srv.ConnectionCount())

	report, err := srv.Broadcast(ctx, NewCommentMessage(p))
	if err != nil {
		return report, fmt.Errorf("broadcast comment %d: %w", p.ID, err)
	}
	return report, nil
}

// Handle is the queue handler for the websocket queue. A missing server is
// logged and the task is dropped rather than retried.
func (w *DeliveryWorker) Handle(ctx context.Context, job *queue.Job) error {
	if job.Task.Kind != queue.KindBroadcast {
		return fmt.Errorf("delivery worker cannot run %q tasks", job.Task.Kind)
	}

	_, err := w.Deliver(ctx, job.Task.Comment)
	if errors.Is(err, ErrServerAbsent) {
		w.metrics.DeliveriesDropped.Inc()
		w.logger.WithField("comment_id", job.Task.Comment.ID).
			Error("Socket server is not running, dropping broadcast")
		return nil
	}
	return err
}
