package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateServer is returned when a second Server is built while one
	// is still live in the same slot. It is a wiring error, not a runtime one.
	ErrDuplicateServer = errors.New("socket server already exists in this process")

	ErrNotRunning          = errors.New("socket server is not running")
	ErrServerStopped       = errors.New("socket server has been stopped")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrSendTimeout         = errors.New("send timeout")
)

// SendError reports a failed write to a single connection. Broadcast logs
// and skips it; it never aborts delivery to the other connections.
type SendError struct {
	ConnectionID string
	Err          error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to connection %s: %v", e.ConnectionID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
