package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
)

// WebSocketHandler upgrades socket clients and hands them to the server.
type WebSocketHandler struct {
	server   *hub.Server
	logger   logger.Logger
	upgrader websocket.Upgrader
	opts     hub.WebSocketOptions
}

func NewWebSocketHandler(server *hub.Server, logger logger.Logger, opts hub.WebSocketOptions) *WebSocketHandler {
	return &WebSocketHandler{
		server: server,
		logger: logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Every client gets the same public comment feed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts: opts,
	}
}

// Connect upgrades the request and blocks until the connection ends.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.server.IsRunning() {
		h.logger.Error("Socket server is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection(generateConnectionID(), conn, h.logger, h.opts)
	if err := h.server.Accept(wsConn); err != nil {
		h.logger.WithError(err).WithField("connection_id", wsConn.ID()).Error("Failed to accept connection")
		_ = wsConn.Close()
		return
	}

	<-wsConn.Context().Done()
}

// activityReporter is implemented by connections that track client
// traffic, such as *hub.WebSocketConnection.
type activityReporter interface {
	LastActivity() time.Time
}

func connectionInfo(conn hub.Connection) gin.H {
	info := gin.H{
		"id":          conn.ID(),
		"type":        conn.Type(),
		"remote_addr": conn.RemoteAddr(),
		"closed":      conn.IsClosed(),
	}
	if r, ok := conn.(activityReporter); ok {
		info["last_activity"] = r.LastActivity().UTC().Format(time.RFC3339)
	}
	return info
}

// GetConnections lists the live websocket connections.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := make([]gin.H, 0)
	for _, conn := range h.server.Connections() {
		if conn.Type() != "websocket" {
			continue
		}
		connections = append(connections, connectionInfo(conn))
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"server_running":    h.server.IsRunning(),
	})
}

// GetConnection describes one live websocket connection.
func (h *WebSocketHandler) GetConnection(c *gin.Context) {
	conn, ok := h.server.GetConnection(c.Param("id"))
	if !ok || conn.Type() != "websocket" {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Connection not found",
		})
		return
	}
	c.JSON(http.StatusOK, connectionInfo(conn))
}

func generateConnectionID() string {
	return "ws-" + uuid.NewString()
}
