package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrBusClosed indicates a publish or subscribe on a closed bus.
var ErrBusClosed = errors.New("event: bus closed")

// Handler processes a delivered event.
type Handler func(ctx context.Context, evt Event) error

// Bus provides pub/sub event distribution.
type Bus interface {
	// Publish delivers an event to all matching subscribers.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers a handler for the given event types.
	// An empty type list subscribes to all events.
	Subscribe(types []string, handler Handler) Subscription

	// Close shuts down the bus. Further publishes fail with ErrBusClosed.
	Close() error
}

// Subscription is an active subscription that can be removed.
type Subscription interface {
	Unsubscribe()
}

// LocalBus is an in-memory Bus with synchronous delivery. Handler
// errors are collected and returned from Publish but do not stop
// delivery to the remaining subscribers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int64]*subscription
	nextID atomic.Int64
	closed atomic.Bool
}

type subscription struct {
	id      int64
	types   map[string]bool // empty = all types
	handler Handler
	bus     *LocalBus
}

// NewLocalBus creates a new in-memory event bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int64]*subscription)}
}

// Publish implements Bus.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	matching := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if len(sub.types) == 0 || sub.types[evt.Type] {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, sub := range matching {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.handler(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", sub.id, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		types:   make(map[string]bool, len(types)),
		handler: handler,
		bus:     b,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Close implements Bus.
func (b *LocalBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	b.subs = make(map[int64]*subscription)
	b.mu.Unlock()
	return nil
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

var _ Bus = (*LocalBus)(nil)
