package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/eventbus"
	"go-comment-notifier/internal/infrastructure/logger"
)

// CommentHandler is where the comment write path reports a committed
// comment. It only emits CommentCreated; delivery happens asynchronously.
type CommentHandler struct {
	bus    *eventbus.Bus
	logger logger.Logger
}

type CommentUserRequest struct {
	ID   int64  `json:"id" binding:"required,gt=0"`
	Name string `json:"name"`
}

type CreatedCommentRequest struct {
	ID        int64              `json:"id" binding:"required,gt=0"`
	Content   string             `json:"content"`
	NewsID    int64              `json:"news_id" binding:"required,gt=0"`
	User      CommentUserRequest `json:"user"`
	CreatedAt *time.Time         `json:"created_at"`
}

func NewCommentHandler(bus *eventbus.Bus, logger logger.Logger) *CommentHandler {
	return &CommentHandler{
		bus:    bus,
		logger: logger.WithField("handler", "comment"),
	}
}

func (r CreatedCommentRequest) payload() comment.Payload {
	createdAt := time.Now().UTC()
	if r.CreatedAt != nil {
		createdAt = r.CreatedAt.UTC()
	}
	return comment.Payload{
		ID:        r.ID,
		Content:   r.Content,
		NewsID:    r.NewsID,
		User:      comment.Author{ID: r.User.ID, Name: r.User.Name},
		CreatedAt: createdAt,
	}
}

// Created accepts the snapshot of a committed comment. The response never
// reflects whether clients were reached.
func (h *CommentHandler) Created(c *gin.Context) {
	var req CreatedCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid comment format",
		})
		return
	}

	p := req.payload()
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.bus.Emit(c.Request.Context(), comment.NewCreated(p)); err != nil {
		h.logger.WithError(err).WithField("comment_id", p.ID).Error("CommentCreated listeners failed")
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"comment_id": p.ID,
	})
}
