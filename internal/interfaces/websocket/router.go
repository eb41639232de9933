package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

// NewSocketRouter returns the handler served on the socket endpoint.
// Clients may connect on "/" or "/ws".
func NewSocketRouter(logger logger.Logger, server *hub.Server, opts hub.WebSocketOptions) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	wsHandler := NewWebSocketHandler(server, logger, opts)
	router.GET("/", wsHandler.Connect)
	router.GET("/ws", wsHandler.Connect)

	return router
}

// InitWebSocketRouter registers the websocket inspection endpoints on the
// API router.
func InitWebSocketRouter(logger logger.Logger, server *hub.Server, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(server, logger, hub.DefaultWebSocketOptions())

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
	apiGroup.GET("/connections/:id", wsHandler.GetConnection)
}
