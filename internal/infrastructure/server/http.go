package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server is a long-running network listener with a graceful stop.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server

	mu       sync.Mutex
	listener net.Listener
}

var _ Server = (*HTTPServer)(nil)

type Option func(*http.Server)

// WithWriteTimeout overrides the response write timeout. Zero disables it,
// which long-lived upgrade and event-stream endpoints need.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) { s.WriteTimeout = d }
}

func NewHTTPServer(addr string, handler http.Handler, opts ...Option) *HTTPServer {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		srv:     srv,
	}
}

// Listen binds the address without serving yet, so bind failures surface
// to the caller before anything runs in the background.
func (h *HTTPServer) Listen(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.addr, err)
	}
	h.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Start serves until Stop is called. It binds first if Listen was not called.
func (h *HTTPServer) Start(ctx context.Context) error {
	if err := h.Listen(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	ln := h.listener
	h.mu.Unlock()

	err := h.srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx ends, then drops whatever
// connections are left.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if err := h.srv.Shutdown(ctx); err != nil {
		_ = h.srv.Close()
		return err
	}
	return nil
}
