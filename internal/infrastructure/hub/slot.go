package hub

import "sync/atomic"

// Slot holds at most one live Server. Process is the slot every production
// Server claims; tests build their own with NewSlot to stay independent.
type Slot struct {
	current atomic.Pointer[Server]
}

// Process is the process-wide slot.
var Process = NewSlot()

func NewSlot() *Slot {
	return &Slot{}
}

func (s *Slot) claim(srv *Server) error {
	if !s.current.CompareAndSwap(nil, srv) {
		return ErrDuplicateServer
	}
	return nil
}

func (s *Slot) release(srv *Server) {
	s.current.CompareAndSwap(srv, nil)
}

// Current returns the live server once it has started accepting
// connections, and false before Start or after Stop.
func (s *Slot) Current() (*Server, bool) {
	srv := s.current.Load()
	if srv == nil || !srv.IsRunning() {
		return nil, false
	}
	return srv, true
}

// Instance returns the running server of this process, if any.
func Instance() (*Server, bool) {
	return Process.Current()
}
