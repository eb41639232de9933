package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

// ServerLocator finds the running socket server, if this process has one.
type ServerLocator interface {
	Current() (*hub.Server, bool)
}

type StatusHandler struct {
	locator ServerLocator
	logger  logger.Logger
}

func NewStatusHandler(locator ServerLocator, logger logger.Logger) *StatusHandler {
	return &StatusHandler{
		locator: locator,
		logger:  logger.WithField("handler", "status"),
	}
}

func (h *StatusHandler) HubStatus(c *gin.Context) {
	running, connections := false, 0
	if srv, ok := h.locator.Current(); ok {
		running, connections = true, srv.ConnectionCount()
	}
	h.logger.Debugf("Hub status check - Running: %v, Connections: %d", running, connections)

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"server_running": running,
		"connections":    connections,
	})
}
