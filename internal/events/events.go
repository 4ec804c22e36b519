// Package events dispatches source lifecycle events between the webhook,
// the git puller and the queue builder.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docsync/internal/docsync"
)

// Topic names an event kind.
type Topic string

const (
	// TopicUpdateRequested asks for the source repository to be refreshed.
	TopicUpdateRequested Topic = "source.update_requested"

	// TopicPullFinished reports a successful pull. Event.Path is the
	// repository working directory.
	TopicPullFinished Topic = "source.pull_finished"
)

// Event is a single published event.
type Event struct {
	Topic Topic
	Path  string
}

// Handler reacts to an event. Returned errors are reported to the publisher.
type Handler func(ctx context.Context, ev Event) error

// Bus delivers events synchronously to subscribers in subscription order.
// Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	logger   docsync.Logger
}

func NewBus(logger docsync.Logger) *Bus {
	return &Bus{handlers: make(map[Topic][]Handler), logger: logger}
}

func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish runs every handler of ev.Topic, even when an earlier one fails,
// and returns the joined handler errors.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Topic]...)
	b.mu.RUnlock()

	b.logger.Debug("event published", "topic", ev.Topic, "path", ev.Path, "handlers", len(handlers))

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.Topic, err))
		}
	}
	return errors.Join(errs...)
}
