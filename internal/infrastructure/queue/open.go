package queue

import (
	"context"
	"fmt"

	"go-comment-notifier/internal/infrastructure/config"
	"go-comment-notifier/internal/infrastructure/logger"
)

// Open builds the driver selected by cfg.Driver for both known queues.
func Open(ctx context.Context, cfg config.QueueConfig, log logger.Logger) (Queue, error) {
	opts := Options{
		Names:        []string{config.QueueNotifications, config.QueueWebSocket},
		Buffer:       cfg.Buffer,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
		BlockTimeout: cfg.BlockTimeout,
		Lease:        cfg.Lease,
	}

	switch cfg.Driver {
	case "", "memory":
		return NewMemoryQueue(opts, log), nil
	case "redis":
		return OpenRedis(ctx, cfg.RedisURL, opts, log)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN, opts, log)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
