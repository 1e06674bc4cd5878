// Package events delivers task completion notifications to in-process
// subscribers.
package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexpearce/distribute-challenge/internal/model"
)

// ErrUnknownSubscription is returned when unsubscribing an ID that is not
// subscribed.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Bus fans task events out to subscriber callbacks. It is safe for
// concurrent use.
//
// Callbacks run synchronously on the publishing goroutine and must not
// block. Subscribers that need to do slow work should hand events off to
// their own goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]func(model.TaskEvent)
	logger *slog.Logger
}

// NewBus creates an event bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]func(model.TaskEvent)),
		logger: logger,
	}
}

// Subscribe registers fn and returns its subscription ID.
func (b *Bus) Subscribe(fn func(model.TaskEvent)) (string, error) {
	if fn == nil {
		return "", errors.New("subscribe: callback is nil")
	}
	id := model.NewID()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = fn
	return id, nil
}

// Unsubscribe removes a subscription. Once it returns, fn is not called
// for events published afterwards.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return fmt.Errorf("unsubscribe %s: %w", id, ErrUnknownSubscription)
	}
	delete(b.subs, id)
	return nil
}

// Publish delivers ev to every current subscriber exactly once.
func (b *Bus) Publish(ev model.TaskEvent) {
	b.mu.RLock()
	fns := make(map[string]func(model.TaskEvent), len(b.subs))
	for id, fn := range b.subs {
		fns[id] = fn
	}
	b.mu.RUnlock()

	for id, fn := range fns {
		b.deliver(id, fn, ev)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(id string, fn func(model.TaskEvent), ev model.TaskEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "subscription_id", id, "event", ev.Type, "panic", r)
		}
	}()
	fn(ev)
}
