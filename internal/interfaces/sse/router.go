package sse

import (
	"github.com/gin-gonic/gin"

	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, server *hub.Server, opts hub.SSEOptions, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(server, logger, opts)

	rg.GET("/sse", sseHandler.Connect)
}
