// Package queue carries notification and broadcast tasks from the
// dispatcher to the consumers, in process or through redis or postgres.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-comment-notifier/internal/domain/comment"
	"go-comment-notifier/internal/infrastructure/metrics"
)

var (
	ErrClosed       = errors.New("queue is closed")
	ErrUnknownQueue = errors.New("unknown queue")
)

type Kind string

const (
	KindProcessNotification Kind = "process_notification"
	KindBroadcast           Kind = "broadcast"
)

// Task is what a consumer runs. The comment is a value snapshot, so a task
// never observes later changes to the comment.
type Task struct {
	Kind    Kind            `json:"kind"`
	Comment comment.Payload `json:"comment"`
}

func NewNotificationTask(p comment.Payload) Task {
	return Task{Kind: KindProcessNotification, Comment: p}
}

func NewBroadcastTask(p comment.Payload) Task {
	return Task{Kind: KindBroadcast, Comment: p}
}

// Job is a Task in flight on a named queue.
type Job struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	Task       Task      `json:"task"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func newJob(name string, task Task) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Queue:      name,
		Task:       task,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (j *Job) marshal() ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	return b, nil
}

func unmarshalJob(b []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

// Queue is implemented by every driver.
type Queue interface {
	Enqueue(ctx context.Context, name string, task Task) error
	// Dequeue blocks until a job is available on name or ctx ends.
	Dequeue(ctx context.Context, name string) (*Job, error)
	// Complete records the result of running job. A failed job is retried
	// until it has been attempted MaxAttempts times, then marked failed.
	Complete(ctx context.Context, job *Job, jobErr error) (Outcome, error)
	Close() error
}

// Outcome values double as the outcome label of the processed-tasks metric.
type Outcome string

const (
	OutcomeDone    Outcome = metrics.OutcomeDone
	OutcomeRetried Outcome = metrics.OutcomeRetried
	OutcomeFailed  Outcome = metrics.OutcomeFailed
)

type Options struct {
	// Names are the queues the driver accepts.
	Names       []string
	Buffer      int
	MaxAttempts int
	// PollInterval is how long the postgres driver sleeps when no job is ready.
	PollInterval time.Duration
	// BlockTimeout bounds one BRPOP call of the redis driver.
	BlockTimeout time.Duration
	// Lease is how long a postgres job may stay running before another
	// consumer takes it back, counting the lost run as an attempt.
	Lease time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 2 * time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	return o
}

func (o Options) knows(name string) bool {
	for _, n := range o.Names {
		if n == name {
			return true
		}
	}
	return false
}

func (o Options) check(name string) error {
	if !o.knows(name) {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return nil
}

// decide applies the retry policy to a finished attempt of job.
func decide(job *Job, jobErr error, maxAttempts int) Outcome {
	if jobErr == nil {
		return OutcomeDone
	}
	if job.Attempts+1 < maxAttempts {
		return OutcomeRetried
	}
	return OutcomeFailed
}
