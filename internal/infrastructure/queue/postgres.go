package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-comment-notifier/internal/infrastructure/logger"
)

// PostgresQueue keeps jobs in the queue_jobs table. Concurrent consumers
// claim rows with FOR UPDATE SKIP LOCKED, so each job runs at most once
// per attempt. A job left running past its lease, by a consumer that died
// before Complete, is queued again or failed once out of attempts.
type PostgresQueue struct {
	pool   *pgxpool.Pool
	opts   Options
	logger logger.Logger
	closed atomic.Bool
}

var _ Queue = (*PostgresQueue)(nil)

func OpenPostgres(ctx context.Context, dsn string, opts Options, log logger.Logger) (*PostgresQueue, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresQueue(pool, opts, log), nil
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewPostgresQueue(pool *pgxpool.Pool, opts Options, log logger.Logger) *PostgresQueue {
	return &PostgresQueue{
		pool:   pool,
		opts:   opts.withDefaults(),
		logger: log.WithFields(logger.Fields{"component": "queue", "driver": "postgres"}),
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, name string, task Task) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if err := q.opts.check(name); err != nil {
		return err
	}

	job := newJob(name, task)
	payload, err := json.Marshal(job.Task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = q.pool.Exec(ctx, `
INSERT INTO queue_jobs(id, queue, payload, status, created_at)
VALUES ($1, $2, $3::jsonb, 'queued', $4)
`, uuid.MustParse(job.ID), name, string(payload), job.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", name, err)
	}
	return nil
}

// Dequeue polls for the oldest queued job on name every PollInterval.
func (q *PostgresQueue) Dequeue(ctx context.Context, name string) (*Job, error) {
	if err := q.opts.check(name); err != nil {
		return nil, err
	}

	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}

		if err := q.reclaim(ctx, name); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		job, err := q.claim(ctx, name)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		timer := time.NewTimer(q.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// reclaim takes back jobs on name whose lease expired.
func (q *PostgresQueue) reclaim(ctx context.Context, name string) error {
	tag, err := q.pool.Exec(ctx, `
UPDATE queue_jobs
SET status = CASE WHEN attempts+1 >= $3 THEN 'failed' ELSE 'queued' END,
    attempts = attempts+1,
    last_error = 'lease expired',
    started_at = NULL,
    finished_at = CASE WHEN attempts+1 >= $3 THEN now() END
WHERE queue=$1 AND status='running' AND started_at < now() - make_interval(secs => $2)
`, name, q.opts.Lease.Seconds(), q.opts.MaxAttempts)
	if err != nil {
		return fmt.Errorf("reclaim %s jobs: %w", name, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.WithField("queue", name).Warnf("Reclaimed %d jobs with an expired lease", n)
	}
	return nil
}

func (q *PostgresQueue) claim(ctx context.Context, name string) (*Job, error) {
	row := q.pool.QueryRow(ctx, `
WITH next AS (
  SELECT id FROM queue_jobs
  WHERE queue=$1 AND status='queued'
  ORDER BY created_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
UPDATE queue_jobs j
SET status='running', started_at=now()
FROM next
WHERE j.id=next.id
RETURNING j.id::text, j.queue, j.payload, j.attempts, j.created_at;
`, name)

	var (
		job     Job
		payload []byte
	)
	if err := row.Scan(&job.ID, &job.Queue, &payload, &job.Attempts, &job.EnqueuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("claim %s job: %w", name, err)
	}
	if err := json.Unmarshal(payload, &job.Task); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", job.ID, err)
	}
	return &job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, job *Job, jobErr error) (Outcome, error) {
	outcome := decide(job, jobErr, q.opts.MaxAttempts)
	id, err := uuid.Parse(job.ID)
	if err != nil {
		return outcome, fmt.Errorf("complete job %q: %w", job.ID, err)
	}

	switch outcome {
	case OutcomeDone:
		_, err = q.pool.Exec(ctx,
			`UPDATE queue_jobs SET status='done', finished_at=now() WHERE id=$1`, id)
	case OutcomeRetried:
		_, err = q.pool.Exec(ctx, `
UPDATE queue_jobs SET status='queued', attempts=attempts+1, last_error=$2, started_at=NULL
WHERE id=$1`, id, jobErr.Error())
	case OutcomeFailed:
		q.logger.WithError(jobErr).WithField("job_id", job.ID).
			Errorf("Job failed after %d attempts", job.Attempts+1)
		_, err = q.pool.Exec(ctx, `
UPDATE queue_jobs SET status='failed', attempts=attempts+1, last_error=$2, finished_at=now()
WHERE id=$1`, id, jobErr.Error())
	}
	if err != nil {
		return outcome, fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return outcome, nil
}

// Status returns the stored status of a job.
func (q *PostgresQueue) Status(ctx context.Context, id string) (string, int, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return "", 0, fmt.Errorf("job %q: %w", id, err)
	}

	var (
		status   string
		attempts int
	)
	err = q.pool.QueryRow(ctx, `SELECT status, attempts FROM queue_jobs WHERE id=$1`, jobID).
		Scan(&status, &attempts)
	if err != nil {
		return "", 0, fmt.Errorf("job %s status: %w", id, err)
	}
	return status, attempts, nil
}

func (q *PostgresQueue) Close() error {
	if q.closed.CompareAndSwap(false, true) {
		q.pool.Close()
	}
	return nil
}
