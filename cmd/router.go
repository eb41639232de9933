package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-comment-notifier/internal/infrastructure/eventbus"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/interfaces/rest/v1/handler"
	"go-comment-notifier/internal/interfaces/sse"
	"go-comment-notifier/internal/interfaces/websocket"
)

type routerDeps struct {
	logger   logger.Logger
	registry *prometheus.Registry
	locator  handler.ServerLocator
	// bus and socket are nil in worker processes.
	bus        *eventbus.Bus
	socket     *hub.Server
	sseOptions hub.SSEOptions
}

func InitRouter(d routerDeps) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/hub/status", handler.NewStatusHandler(d.locator, d.logger).HubStatus)
	rootGroup.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))

	if d.bus != nil {
		commentHandler := handler.NewCommentHandler(d.bus, d.logger)
		apiGroup := rootGroup.Group("/api/v1")
		{
			apiGroup.POST("/comments", commentHandler.Created)
		}
	}

	if d.socket != nil {
		sse.InitSSERouter(d.logger, d.socket, d.sseOptions, rootGroup)
		websocket.InitWebSocketRouter(d.logger, d.socket, rootGroup)
	}

	return router
}
