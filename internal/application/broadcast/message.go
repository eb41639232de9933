// Package broadcast turns created comments into socket messages and pushes
// them to every connected client.
package broadcast

import (
	"time"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/hub"
)

type wireUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type wireComment struct {
	ID        int64    `json:"id"`
	Content   string   `json:"content"`
	NewsID    int64    `json:"news_id"`
	User      wireUser `json:"user"`
	CreatedAt string   `json:"created_at"`
}

type commentData struct {
	Comment wireComment `json:"comment"`
}

// NewCommentMessage builds the CommentCreated message clients receive:
//
//	{"event":"CommentCreated","data":{"comment":{"id":..,"content":..,"news_id":..,
//	 "user":{"id":..,"name":..},"created_at":"2024-01-01T00:00:00Z"}}}
func NewCommentMessage(p comment.Payload) *hub.Message {
	return hub.NewMessage(comment.EventCreated, commentData{
		Comment: wireComment{
			ID:        p.ID,
			Content:   p.Content,
			NewsID:    p.NewsID,
			User:      wireUser{ID: p.User.ID, Name: p.User.Name},
			CreatedAt: formatTime(p.CreatedAt),
		},
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
