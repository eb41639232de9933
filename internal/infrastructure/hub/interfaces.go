package hub

import "context"

// Connection represents one live client stream (WebSocket, SSE, ...).
type Connection interface {
	ID() string
	Type() string
	RemoteAddr() string
	// Send queues an already encoded frame. Frames sent to the same
	// connection are written in the order Send was called.
	Send(ctx context.Context, data []byte) error
	Close() error
	IsClosed() bool
	// Context is cancelled once the connection is closed from either side.
	Context() context.Context
}
