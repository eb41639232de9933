// Package comment holds the snapshot of a freshly created comment that
// travels from the write path to connected socket clients.
package comment

import (
	"errors"
	"fmt"
	"time"
)

// EventCreated is the domain event name and the literal "event" field on the wire.
const EventCreated = "CommentCreated"

var ErrInvalidPayload = errors.New("invalid comment payload")

// Author is the part of the comment's user that is exposed to clients.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Payload is an immutable snapshot taken when the comment was committed.
// It is passed by value and contains no references to live state.
type Payload struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	NewsID    int64     `json:"news_id"`
	User      Author    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Payload) Validate() error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("%w: id must be positive", ErrInvalidPayload)
	case p.NewsID <= 0:
		return fmt.Errorf("%w: news_id must be positive", ErrInvalidPayload)
	case p.User.ID <= 0:
		return fmt.Errorf("%w: user.id must be positive", ErrInvalidPayload)
	case p.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at is required", ErrInvalidPayload)
	}
	return nil
}

// Created is emitted exactly once after a comment row is durably written.
type Created struct {
	Comment Payload
}

func (Created) Name() string { return EventCreated }

func NewCreated(p Payload) Created {
	return Created{Comment: p}
}
