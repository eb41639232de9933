// Package eventbus delivers in-process domain events to their listeners.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-comment-notifier/internal/infrastructure/logger"
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans an emitted event out to every handler subscribed to its name.
// Emit is synchronous: it returns once all handlers ran.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
	logger logger.Logger
}

func New(log logger.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: log.WithField("component", "event_bus"),
	}
}

// Subscribe registers h for events named name and returns a func that
// removes it again.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Emit runs every handler for the event in subscription order. A failing or
// panicking handler does not keep the others from running; all failures are
// joined into the returned error.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Name()]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.WithField("event", event.Name()).Debug("No listeners for event")
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := b.call(ctx, s.handler, event); err != nil {
			b.logger.WithError(err).WithField("event", event.Name()).Error("Event listener failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) call(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %s panicked: %v", event.Name(), r)
		}
	}()
	return h(ctx, event)
}

// Listeners returns how many handlers are subscribed to name.
func (b *Bus) Listeners(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
