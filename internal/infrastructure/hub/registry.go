package hub

import (
	"fmt"
	"sync"
)

// Registry is the authoritative set of live connections keyed by id.
// It never holds its lock across I/O: All returns a copy so slow sends
// cannot block accept or close.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]Connection)}
}

func (r *Registry) Register(conn Connection) error {
	if conn.IsClosed() {
		return fmt.Errorf("register %s: %w", conn.ID(), ErrConnectionClosed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return fmt.Errorf("register %s: %w", conn.ID(), ErrDuplicateConnection)
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes the connection and returns it. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if exists {
		delete(r.connections, id)
	}
	return conn, exists
}

func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	return conn, exists
}

// All returns a point-in-time snapshot in no particular order.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	connections := make([]Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.connections = make(map[string]Connection)
	return connections
}
