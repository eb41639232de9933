package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/config"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
	"go-comment-notifier/internal/infrastructure/queue"
)

const aliceRequest = `{"id":42,"content":"hi","news_id":7,"user":{"id":3,"name":"Alice"},"created_at":"2024-01-01T00:00:00Z"}`

const aliceWire = `{"event":"CommentCreated","data":{"comment":{"id":42,"content":"hi","news_id":7,` +
	`"user":{"id":3,"name":"Alice"},"created_at":"2024-01-01T00:00:00Z"}}}`

var apiClient = &http.Client{Timeout: 2 * time.Second}

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Socket.Addr = "127.0.0.1:0"
	cfg.API.Addr = "127.0.0.1:0"
	cfg.Queue.Driver = "memory"
	return cfg
}

// runApp runs app until the test ends and fails if it does not stop cleanly.
func runApp(t *testing.T, app *Application) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("application did not stop")
		}
	})
}

func dialSocket(t *testing.T, app *Application) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+app.socket.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return app.socket.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func postComment(t *testing.T, app *Application) {
	t.Helper()
	resp, err := apiClient.Post("http://"+app.httpSrv.Addr()+"/api/v1/comments", "application/json",
		strings.NewReader(aliceRequest))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func readOne(t *testing.T, conn *gorilla.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestServe_CommentReachesSocketClientThroughQueue(t *testing.T) {
	cfg := testConfig(t)
	obs := newObservability()
	app, err := newServeApp(context.Background(), cfg, logger.NewNop(), obs, hub.NewSlot())
	require.NoError(t, err)
	runApp(t, app)

	client := dialSocket(t, app)
	postComment(t, app)

	assert.Equal(t, aliceWire, readOne(t, client))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(obs.metrics.TasksProcessed.WithLabelValues(config.QueueNotifications, metrics.OutcomeDone)) == 1 &&
			testutil.ToFloat64(obs.metrics.TasksProcessed.WithLabelValues(config.QueueWebSocket, metrics.OutcomeDone)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = client.ReadMessage()
	assert.Error(t, err, "client must receive exactly one message")
}

func TestServe_DirectListener(t *testing.T) {
	cfg := testConfig(t)
	cfg.Socket.DirectListener = true
	cfg.Queue.Consume = []string{config.QueueNotifications}

	app, err := newServeApp(context.Background(), cfg, logger.NewNop(), newObservability(), hub.NewSlot())
	require.NoError(t, err)
	runApp(t, app)

	client := dialSocket(t, app)
	postComment(t, app)

	assert.Equal(t, aliceWire, readOne(t, client))
}

func TestServe_DirectListenerOutlastsQueueBuffer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Socket.DirectListener = true
	cfg.Queue.Consume = []string{config.QueueNotifications}
	cfg.Queue.Buffer = 2

	app, err := newServeApp(context.Background(), cfg, logger.NewNop(), newObservability(), hub.NewSlot())
	require.NoError(t, err)
	runApp(t, app)

	client := dialSocket(t, app)
	for i := 0; i < 3*cfg.Queue.Buffer; i++ {
		postComment(t, app)
		assert.Equal(t, aliceWire, readOne(t, client), "comment %d", i)
	}
	assert.Zero(t, app.queue.(*queue.MemoryQueue).Len(config.QueueWebSocket))
}

func TestScheduledQueues(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		direct  bool
		consume []string
		want    []string
	}{
		{"queue path", "memory", false, []string{"notifications", "websocket"}, []string{"notifications", "websocket"}},
		{"direct listener", "memory", true, []string{"notifications"}, []string{"notifications"}},
		{"memory without consumers", "memory", true, nil, nil},
		{"redis feeds remote workers", "redis", false, nil, []string{"notifications", "websocket"}},
		{"redis direct listener", "redis", true, nil, []string{"notifications"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Queue.Driver = tt.driver
			cfg.Queue.Consume = tt.consume
			cfg.Socket.DirectListener = tt.direct
			assert.Equal(t, tt.want, scheduledQueues(cfg))
		})
	}
}

func TestServe_SecondServerInSlotFails(t *testing.T) {
	slot := hub.NewSlot()
	cfg := testConfig(t)

	app, err := newServeApp(context.Background(), cfg, logger.NewNop(), newObservability(), slot)
	require.NoError(t, err)
	runApp(t, app)

	_, err = newServeApp(context.Background(), cfg, logger.NewNop(), newObservability(), slot)
	assert.ErrorIs(t, err, hub.ErrDuplicateServer)
}

func TestWorker_DropsBroadcastWithoutServer(t *testing.T) {
	cfg := testConfig(t)
	obs := newObservability()
	app, err := newWorkerApp(context.Background(), cfg, logger.NewNop(), obs, hub.NewSlot())
	require.NoError(t, err)
	runApp(t, app)

	p := comment.Payload{
		ID:        42,
		Content:   "hi",
		NewsID:    7,
		User:      comment.Author{ID: 3, Name: "Alice"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, app.queue.Enqueue(context.Background(), config.QueueWebSocket, queue.NewBroadcastTask(p)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(obs.metrics.DeliveriesDropped) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		obs.metrics.TasksProcessed.WithLabelValues(config.QueueWebSocket, metrics.OutcomeDone)))
}

func TestRouter_StatusAndMetrics(t *testing.T) {
	obs := newObservability()
	slot := hub.NewSlot()
	router := InitRouter(routerDeps{logger: logger.NewNop(), registry: obs.registry, locator: slot})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hub/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","server_running":false,"connections":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "comments_socket_active_connections")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/comments", strings.NewReader(aliceRequest)))
	assert.Equal(t, http.StatusNotFound, rec.Code, "workers do not accept comments")
}
