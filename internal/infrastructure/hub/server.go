package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
	"go-comment-notifier/internal/infrastructure/server"
)

type Config struct {
	// Addr is the socket endpoint, "0.0.0.0:6001" by default.
	Addr string
	// SendTimeout bounds how long one connection may hold up a broadcast.
	// Zero means no bound.
	SendTimeout time.Duration
	// Parallelism caps concurrent sends within one broadcast.
	Parallelism int
}

func DefaultConfig() Config {
	return Config{
		Addr:        "0.0.0.0:6001",
		SendTimeout: 5 * time.Second,
		Parallelism: 16,
	}
}

type Option func(*Server)

// WithSlot makes the server claim slot instead of Process.
func WithSlot(slot *Slot) Option {
	return func(s *Server) { s.slot = slot }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Report summarizes one broadcast.
type Report struct {
	Connections int
	Delivered   int
	Failed      int
}

// Server owns the connection registry, accepts connections on the socket
// endpoint and fans messages out to every registered connection.
type Server struct {
	cfg      Config
	registry *Registry
	logger   logger.Logger
	metrics  *metrics.Metrics
	slot     *Slot

	lifecycleMu sync.Mutex
	running     atomic.Bool
	stopped     bool
	transport   *server.HTTPServer
	serveDone   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the server and claims its slot. Building a second server while
// another one is live in the same slot fails with ErrDuplicateServer.
func New(cfg Config, log logger.Logger, opts ...Option) (*Server, error) {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   log.WithField("component", "socket_server"),
		slot:     Process,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}

	if err := s.slot.claim(s); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start binds the socket endpoint and serves handler in the background.
// ctx bounds the bind only. A bind failure is returned immediately; callers
// treat it as fatal.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return ErrServerStopped
	}
	if s.running.Load() {
		return fmt.Errorf("socket server is already running")
	}

	transport := server.NewHTTPServer(s.cfg.Addr, handler, server.WithWriteTimeout(0))
	if err := transport.Listen(ctx); err != nil {
		return fmt.Errorf("bind socket server: %w", err)
	}
	s.transport = transport
	s.serveDone = make(chan struct{})

	// The listener already queues connections, so handlers must see a
	// running server from the first request on.
	s.running.Store(true)
	go func() {
		defer close(s.serveDone)
		if err := transport.Start(s.ctx); err != nil {
			s.logger.WithError(err).Error("Socket server stopped serving")
		}
	}()

	s.logger.Infof("Socket server listening on %s", transport.Addr())
	return nil
}

// Stop closes every connection, shuts the transport down and frees the
// slot. A stopped server cannot be started again.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running.Store(false)
	s.cancel()

	for _, conn := range s.registry.Drain() {
		if err := conn.Close(); err != nil {
			s.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	s.metrics.ActiveConnections.Set(0)

	var err error
	if s.transport != nil {
		err = s.transport.Stop(ctx)
		select {
		case <-s.serveDone:
		case <-ctx.Done():
		}
	}

	s.slot.release(s)
	s.logger.Info("Socket server stopped")
	return err
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the bound socket address once started.
func (s *Server) Addr() string {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.transport == nil {
		return s.cfg.Addr
	}
	return s.transport.Addr()
}

// Accept registers a freshly opened connection. The connection is
// unregistered automatically once its context ends.
func (s *Server) Accept(conn Connection) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	if err := s.registry.Register(conn); err != nil {
		return err
	}
	s.metrics.ActiveConnections.Set(float64(s.registry.Count()))

	s.logger.WithFields(logger.Fields{
		"connection_id":  conn.ID(),
		"remote_address": conn.RemoteAddr(),
		"type":           conn.Type(),
	}).Info("Connection accepted")

	go func() {
		select {
		case <-conn.Context().Done():
			s.Release(conn.ID())
		case <-s.ctx.Done():
		}
	}()
	return nil
}

// Release unregisters and closes a connection. Unknown ids are ignored.
func (s *Server) Release(id string) {
	conn, ok := s.registry.Unregister(id)
	if !ok {
		return
	}
	_ = conn.Close()
	s.metrics.ActiveConnections.Set(float64(s.registry.Count()))
	s.logger.WithField("connection_id", id).Info("Connection closed")
}

func (s *Server) GetConnection(id string) (Connection, bool) {
	return s.registry.Get(id)
}

func (s *Server) Connections() []Connection {
	return s.registry.All()
}

func (s *Server) ConnectionCount() int {
	return s.registry.Count()
}

// Broadcast encodes msg once and writes it to every registered connection.
// Per-connection failures are logged and skipped; only an encoding
// failure is returned.
func (s *Server) Broadcast(ctx context.Context, msg *Message) (Report, error) {
	data, err := msg.Encode()
	if err != nil {
		return Report{}, fmt.Errorf("encode broadcast: %w", err)
	}
	report := s.BroadcastRaw(ctx, data)
	s.logger.WithField("event", msg.Event).Infof(
		"Broadcasted message to %d/%d connections", report.Delivered, report.Connections)
	return report, nil
}

// BroadcastRaw writes an already encoded frame to the registry snapshot.
func (s *Server) BroadcastRaw(ctx context.Context, data []byte) Report {
	connections := s.registry.All()
	s.metrics.Broadcasts.Inc()
	s.logger.Infof("Sending message to %d connections", len(connections))

	report := Report{Connections: len(connections)}
	if len(connections) == 0 {
		return report
	}

	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)

	for _, conn := range connections {
		conn := conn
		g.Go(func() error {
			if err := s.send(ctx, conn, data); err != nil {
				failed.Add(1)
				s.metrics.SendFailures.Inc()
				s.logger.WithError(err).WithField("connection_id", conn.ID()).
					Warn("Skipping connection after failed send")
				return nil
			}
			delivered.Add(1)
			s.logger.WithField("connection_id", conn.ID()).Debug("Message sent to client")
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	return report
}

func (s *Server) send(ctx context.Context, conn Connection, data []byte) error {
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}
	if err := conn.Send(ctx, data); err != nil {
		return &SendError{ConnectionID: conn.ID(), Err: err}
	}
	return nil
}
