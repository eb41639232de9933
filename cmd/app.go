package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"go-comment-notifier/internal/application/broadcast"
	"go-comment-notifier/internal/application/notifier"
	"go-comment-notifier/internal/infrastructure/config"
	"go-comment-notifier/internal/infrastructure/eventbus"
	"go-comment-notifier/internal/infrastructure/hub"
	"go-comment-notifier/internal/infrastructure/logger"
	"go-comment-notifier/internal/infrastructure/metrics"
	"go-comment-notifier/internal/infrastructure/queue"
	"go-comment-notifier/internal/infrastructure/server"
	"go-comment-notifier/internal/interfaces/websocket"
)

const shutdownTimeout = 5 * time.Second

type observability struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newObservability() observability {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return observability{registry: reg, metrics: metrics.New(reg)}
}

// Application owns every long-running part of one process and stops them
// in order: socket server, queue, then the API listener.
type Application struct {
	logger    logger.Logger
	httpSrv   *server.HTTPServer
	socket    *hub.Server
	queue     queue.Queue
	consumers []*queue.Consumer
}

func newServeApp(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	obs observability,
	slot *hub.Slot,
) (*Application, error) {
	q, err := queue.Open(ctx, cfg.Queue, log)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	socket, err := hub.New(hubConfig(cfg), log, hub.WithSlot(slot), hub.WithMetrics(obs.metrics))
	if err != nil {
		_ = q.Close()
		return nil, err
	}

	wsOpts := websocketOptions(cfg)
	if err := socket.Start(ctx, websocket.NewSocketRouter(log, socket, wsOpts)); err != nil {
		_ = socket.Stop(ctx)
		_ = q.Close()
		return nil, err
	}

	bus := eventbus.New(log)
	notifier.NewDispatcher(q, log, obs.metrics, notifier.WithQueues(scheduledQueues(cfg)...)).Register(bus)
	if cfg.Socket.DirectListener {
		broadcast.NewListener(socket, log).Register(bus)
		log.Info("Direct listener enabled, comments are broadcast without the websocket queue")
	}

	router := InitRouter(routerDeps{
		logger:     log,
		registry:   obs.registry,
		locator:    slot,
		bus:        bus,
		socket:     socket,
		sseOptions: sseOptions(cfg),
	})
	httpSrv := server.NewHTTPServer(cfg.API.Addr, router, server.WithWriteTimeout(0))
	if err := httpSrv.Listen(ctx); err != nil {
		_ = socket.Stop(ctx)
		_ = q.Close()
		return nil, fmt.Errorf("bind api server: %w", err)
	}

	return &Application{
		logger:    log.WithField("app", "serve"),
		httpSrv:   httpSrv,
		socket:    socket,
		queue:     q,
		consumers: newConsumers(cfg, q, log, obs.metrics, slot),
	}, nil
}

func newWorkerApp(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	obs observability,
	slot *hub.Slot,
) (*Application, error) {
	q, err := queue.Open(ctx, cfg.Queue, log)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	router := InitRouter(routerDeps{
		logger:   log,
		registry: obs.registry,
		locator:  slot,
	})
	httpSrv := server.NewHTTPServer(cfg.API.Addr, router)
	if err := httpSrv.Listen(ctx); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("bind api server: %w", err)
	}

	return &Application{
		logger:    log.WithField("app", "worker"),
		httpSrv:   httpSrv,
		queue:     q,
		consumers: newConsumers(cfg, q, log, obs.metrics, slot),
	}, nil
}

func newConsumers(
	cfg *config.Config,
	q queue.Queue,
	log logger.Logger,
	m *metrics.Metrics,
	locator broadcast.Locator,
) []*queue.Consumer {
	var consumers []*queue.Consumer
	if cfg.Consumes(config.QueueNotifications) {
		processor := notifier.NewProcessor(log)
		consumers = append(consumers, queue.NewConsumer(
			q, config.QueueNotifications, cfg.WorkerCount(config.QueueNotifications), processor.Handle, log, m))
	}
	if cfg.Consumes(config.QueueWebSocket) {
		delivery := broadcast.NewDeliveryWorker(locator, log, m)
		consumers = append(consumers, queue.NewConsumer(
			q, config.QueueWebSocket, cfg.WorkerCount(config.QueueWebSocket), delivery.Handle, log, m))
	}
	return consumers
}

// scheduledQueues lists the queues the dispatcher feeds. The direct
// listener replaces the websocket queue, and memory queues only reach
// consumers of this process.
func scheduledQueues(cfg *config.Config) []string {
	var names []string
	for _, name := range []string{config.QueueNotifications, config.QueueWebSocket} {
		if name == config.QueueWebSocket && cfg.Socket.DirectListener {
			continue
		}
		if cfg.Queue.Driver == "memory" && !cfg.Consumes(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func hubConfig(cfg *config.Config) hub.Config {
	return hub.Config{
		Addr:        cfg.Socket.Addr,
		SendTimeout: cfg.Socket.SendTimeout,
		Parallelism: cfg.Socket.BroadcastParallelism,
	}
}

func websocketOptions(cfg *config.Config) hub.WebSocketOptions {
	return hub.WebSocketOptions{
		SendBuffer:   cfg.Socket.SendBuffer,
		WriteTimeout: cfg.Socket.WriteTimeout,
		PingInterval: cfg.Socket.PingInterval,
		PongTimeout:  cfg.Socket.PongTimeout,
	}
}

func sseOptions(cfg *config.Config) hub.SSEOptions {
	return hub.SSEOptions{
		SendBuffer:   cfg.Socket.SendBuffer,
		WriteTimeout: cfg.Socket.WriteTimeout,
		KeepAlive:    cfg.Socket.PingInterval,
	}
}

// Run blocks until ctx is cancelled or a component fails, then shuts
// everything down.
func (app *Application) Run(ctx context.Context) error {
	eg, ectx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		app.logger.Infof("API server listening on %s", app.httpSrv.Addr())
		return app.httpSrv.Start(ectx)
	})

	for _, c := range app.consumers {
		c := c
		eg.Go(func() error {
			return c.Run(ectx)
		})
	}

	eg.Go(func() error {
		<-ectx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if app.socket != nil {
			if err := app.socket.Stop(gracefulshutdownCtx); err != nil {
				app.logger.Errorf("failed to stop socket server: %v", err)
				errs = append(errs, err)
			}
		}
		if err := app.queue.Close(); err != nil {
			app.logger.Errorf("failed to close queue: %v", err)
			errs = append(errs, err)
		}
		if err := app.httpSrv.Stop(gracefulshutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return eg.Wait()
}
