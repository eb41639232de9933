package broadcast

import (
	"context"
	"fmt"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/eventbus"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

// Listener broadcasts CommentCreated events straight from the event bus,
// skipping the queue. It holds the server it was built with.
type Listener struct {
	server *hub.Server
	logger logger.Logger
}

func NewListener(server *hub.Server, log logger.Logger) *Listener {
	return &Listener{
		server: server,
		logger: log.WithField("component", "direct_listener"),
	}
}

// Register subscribes the listener to the bus and returns the unsubscribe func.
func (l *Listener) Register(bus *eventbus.Bus) func() {
	return bus.Subscribe(comment.EventCreated, l.Handle)
}

func (l *Listener) Handle(ctx context.Context, event eventbus.Event) error {
	created, ok := event.(comment.Created)
	if !ok {
		return fmt.Errorf("direct listener: unexpected event %T", event)
	}

	p := created.Comment
	report, err := l.server.Broadcast(ctx, NewCommentMessage(p))
	if err != nil {
		return fmt.Errorf("broadcast comment %d: %w", p.ID, err)
	}
	l.logger.WithField("comment_id", p.ID).
		Infof("Broadcast comment to %d/%d connections", report.Delivered, report.Connections)
	return nil
}
