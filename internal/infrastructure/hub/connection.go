package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"

	"go-comment-notifier/internal/infrastructure/logger"
)

const maxClientFrameSize = 4096

type WebSocketOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 54 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// clientFrame is what clients may send. Only the subscribe hint is known
// and it is not acted upon: every connection receives every broadcast.
type clientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// WebSocketConnection implements Connection over a gorilla websocket.
// A single writer goroutine drains the send buffer, so frames reach the
// client in Send order and the socket never sees concurrent writes.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn
	opts WebSocketOptions

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once

	logger logger.Logger
	send   chan []byte

	lastActivity atomic.Int64
}

func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	logger logger.Logger,
	opts WebSocketOptions,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultWebSocketOptions().SendBuffer
	}

	wsConn := &WebSocketConnection{
		id:     id,
		conn:   conn,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithField("connection_id", id),
		send:   make(chan []byte, opts.SendBuffer),
	}
	wsConn.touch()
	wsConn.setupWebSocket()

	go wsConn.writePump()
	go wsConn.readPump()

	return wsConn
}

func (c *WebSocketConnection) ID() string { return c.id }

func (c *WebSocketConnection) Type() string { return "websocket" }

func (c *WebSocketConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketConnection) Send(ctx context.Context, data []byte) error {
	return enqueue(ctx, c.ctx, c.send, data)
}

// Close is idempotent. The writer goroutine sends the close frame.
func (c *WebSocketConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.logger.Info("WebSocket connection closed")
	})
	return nil
}

func (c *WebSocketConnection) IsClosed() bool {
	return c.closed.Load()
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// LastActivity is the last time a frame or pong was exchanged.
func (c *WebSocketConnection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *WebSocketConnection) setupWebSocket() {
	c.conn.SetReadLimit(maxClientFrameSize)
	if c.opts.PongTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	}
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		if c.opts.PongTimeout > 0 {
			return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		}
		return nil
	})
}

func (c *WebSocketConnection) writeDeadline() time.Time {
	if c.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.WriteTimeout)
}

func (c *WebSocketConnection) writePump() {
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer func() {
		_ = c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}
			c.touch()

		case <-pings:
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			_ = c.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}

func (c *WebSocketConnection) readPump() {
	defer func() {
		_ = c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) && !c.IsClosed() {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}
		c.touch()

		if messageType != websocket.TextMessage {
			continue
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debugf("Ignoring non-JSON client frame of %d bytes", len(data))
			continue
		}
		if frame.Type == "subscribe" {
			c.logger.WithField("channel", frame.Channel).Debug("Subscribe hint received, all connections share one channel")
		}
	}
}

func (c *WebSocketConnection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// enqueue hands item to a connection's writer. A frame only counts as
// queued if the connection was still open after it entered the buffer.
func enqueue[T any](ctx, connCtx context.Context, send chan T, item T) error {
	select {
	case <-connCtx.Done():
		return ErrConnectionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendTimeout, err)
	}

	select {
	case send <- item:
		if connCtx.Err() != nil {
			return ErrConnectionClosed
		}
		return nil
	case <-connCtx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
	}
}

type SSEOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// KeepAlive is the interval between keepalive events; zero disables them.
	KeepAlive time.Duration
}

func DefaultSSEOptions() SSEOptions {
	return SSEOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		KeepAlive:    54 * time.Second,
	}
}

// SSEConnection implements Connection for Server-Sent Events. Like the
// websocket connection it has one writer goroutine draining a buffered
// queue, so Send never touches the ResponseWriter. The owning HTTP handler
// must Close it and wait on Done before returning.
type SSEConnection struct {
	id      string
	writer  http.ResponseWriter
	request *http.Request
	rc      *http.ResponseController
	opts    SSEOptions

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	logger logger.Logger
	send   chan sse.Event
}

func NewSSEConnection(
	ctx context.Context,
	id string,
	w http.ResponseWriter,
	r *http.Request,
	logger logger.Logger,
	opts SSEOptions,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSSEOptions().SendBuffer
	}

	conn := &SSEConnection{
		id:      id,
		writer:  w,
		request: r,
		rc:      http.NewResponseController(w),
		opts:    opts,
		ctx:     rctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger.WithField("connection_id", id),
		send:    make(chan sse.Event, opts.SendBuffer),
	}
	conn.setupSSEHeaders()

	go conn.writeLoop()
	return conn
}

func (c *SSEConnection) ID() string { return c.id }

func (c *SSEConnection) Type() string { return "sse" }

func (c *SSEConnection) RemoteAddr() string { return c.request.RemoteAddr }

func (c *SSEConnection) Send(ctx context.Context, data []byte) error {
	return enqueue(ctx, c.ctx, c.send, sse.Event{Data: string(data)})
}

// Encode queues an arbitrary named event, used for the greeting frame.
func (c *SSEConnection) Encode(event string, data any) error {
	return enqueue(c.ctx, c.ctx, c.send, sse.Event{Event: event, Data: data})
}

// Close is idempotent and never waits on the writer.
func (c *SSEConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.logger.Info("SSE connection closed")
	})
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	return c.closed.Load() || c.ctx.Err() != nil
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// Done is closed once the writer goroutine has stopped touching the
// ResponseWriter.
func (c *SSEConnection) Done() <-chan struct{} {
	return c.done
}

func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // nginx
}

func (c *SSEConnection) writeLoop() {
	var keepAlive <-chan time.Time
	if c.opts.KeepAlive > 0 {
		ticker := time.NewTicker(c.opts.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}
	defer close(c.done)
	defer func() { _ = c.Close() }()

	for {
		select {
		case event := <-c.send:
			if err := c.write(event); err != nil {
				c.logger.Errorf("Failed to write event: %v", err)
				return
			}
		case t := <-keepAlive:
			event := sse.Event{Event: "keepalive", Data: map[string]any{"timestamp": t.Unix()}}
			if err := c.write(event); err != nil {
				c.logger.Errorf("Failed to write keepalive: %v", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *SSEConnection) write(event sse.Event) error {
	if c.opts.WriteTimeout > 0 {
		// Writers without deadline support return ErrNotSupported here.
		_ = c.rc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := sse.Encode(c.writer, event); err != nil {
		return err
	}
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
