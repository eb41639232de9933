package notifier

import (
	"context"
	"fmt"

	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/queue"
)

// ProcessingError is returned by the notification task. The consumer hands
// it to the queue, which retries the job.
type ProcessingError struct {
	CommentID int64
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process notification for comment %d: %v", e.CommentID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Processor runs notification tasks. Email and push delivery are not wired
// yet; the task records the comment and succeeds.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log.WithField("component", "notification_processor")}
}

func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	c := job.Task.Comment
	if job.Task.Kind != queue.KindProcessNotification {
		return &ProcessingError{CommentID: c.ID, Err: fmt.Errorf("unexpected task kind %q", job.Task.Kind)}
	}
	if err := c.Validate(); err != nil {
		p.logger.WithError(err).WithField("comment_id", c.ID).Error("Failed to process comment notification")
		return &ProcessingError{CommentID: c.ID, Err: err}
	}

	p.logger.WithFields(logger.Fields{
		"comment_id": c.ID,
		"news_id":    c.NewsID,
		"user_id":    c.User.ID,
	}).Info("Processing comment notification")
	return nil
}
