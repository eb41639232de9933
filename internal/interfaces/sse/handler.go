package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

// ServerSentEventHandler serves the comment feed as an event stream for
// clients that cannot open a websocket. SSE connections join the same
// registry, so they receive every broadcast.
type ServerSentEventHandler struct {
	server *hub.Server
	logger logger.Logger
	opts   hub.SSEOptions
}

func NewServerSentEventHandler(server *hub.Server, logger logger.Logger, opts hub.SSEOptions) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		server: server,
		logger: logger.WithField("handler", "sse"),
		opts:   opts,
	}
}

// Connect streams events until the client goes away or the server stops.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.server.IsRunning() {
		h.logger.Error("Socket server is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), generateConnectionID(), c.Writer, c.Request, h.logger, h.opts)
	defer func() {
		_ = conn.Close()
		<-conn.Done()
	}()

	if err := h.server.Accept(conn); err != nil {
		h.logger.WithError(err).WithField("connection_id", conn.ID()).Error("Failed to accept connection")
		_ = conn.Close()
		<-conn.Done()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	if err := conn.Encode("connected", map[string]any{
		"connection_id": conn.ID(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	<-conn.Context().Done()
}

func generateConnectionID() string {
	return "sse-" + uuid.NewString()
}
