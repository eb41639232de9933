package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"go-comment-notifier/internal/infrastructure/logger"
)

const redisKeyPrefix = "comments:queue:"

// RedisQueue stores each queue as a redis list. Producers LPUSH and
// consumers BRPOP, so jobs are taken oldest first.
type RedisQueue struct {
	rdb    *redis.Client
	opts   Options
	logger logger.Logger
	closed atomic.Bool
}

var _ Queue = (*RedisQueue)(nil)

// OpenRedis connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies the connection.
func OpenRedis(ctx context.Context, redisURL string, opts Options, log logger.Logger) (*RedisQueue, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisQueue(rdb, opts, log), nil
}

func NewRedisQueue(rdb *redis.Client, opts Options, log logger.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:    rdb,
		opts:   opts.withDefaults(),
		logger: log.WithFields(logger.Fields{"component": "queue", "driver": "redis"}),
	}
}

func listKey(name string) string { return redisKeyPrefix + name }

func failedKey(name string) string { return redisKeyPrefix + name + ":failed" }

func (q *RedisQueue) Enqueue(ctx context.Context, name string, task Task) error {
	if err := q.opts.check(name); err != nil {
		return err
	}
	return q.push(ctx, listKey(name), newJob(name, task))
}

func (q *RedisQueue) push(ctx context.Context, key string, job *Job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	b, err := job.marshal()
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, name string) (*Job, error) {
	if err := q.opts.check(name); err != nil {
		return nil, err
	}

	key := listKey(name)
	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.rdb.BRPop(ctx, q.opts.BlockTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("brpop %s: %w", key, err)
		}

		// res is [key, value].
		job, err := unmarshalJob([]byte(res[1]))
		if err != nil {
			q.logger.WithError(err).WithField("queue", name).Error("Discarding malformed job")
			continue
		}
		return job, nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job, jobErr error) (Outcome, error) {
	outcome := decide(job, jobErr, q.opts.MaxAttempts)
	switch outcome {
	case OutcomeRetried:
		retry := *job
		retry.Attempts++
		if err := q.push(ctx, listKey(job.Queue), &retry); err != nil {
			return OutcomeFailed, err
		}
	case OutcomeFailed:
		failed := *job
		failed.Attempts++
		q.logger.WithError(jobErr).WithField("job_id", job.ID).
			Errorf("Job failed after %d attempts, moving to %s", failed.Attempts, failedKey(job.Queue))
		if err := q.push(ctx, failedKey(job.Queue), &failed); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (q *RedisQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	return q.rdb.Close()
}
