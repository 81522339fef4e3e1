package eventsink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrHandlerFailed = errors.New("event handler failed")

const sinkInProcess = "in_process"

// Handler reacts to one domain event.
type Handler func(ctx context.Context, event entitystore.DomainEvent) error

// InProcess is a synchronous event bus. Publish delivers events in order, each one first to the
// handlers of its type and then to the handlers subscribed to all events, in subscription order.
// The first handler error stops the delivery.
type InProcess struct {
	mu     sync.RWMutex
	byType map[string][]Handler
	all    []Handler
	settings
}

var _ entitystore.EventPublisher = (*InProcess)(nil)

func NewInProcess(options ...Option) (*InProcess, error) {
	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &InProcess{byType: make(map[string][]Handler), settings: s}, nil
}

// Subscribe registers handler for events of eventType.
func (b *InProcess) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byType[eventType] = append(b.byType[eventType], handler)
}

// SubscribeAll registers handler for every event.
func (b *InProcess) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, handler)
}

func (b *InProcess) Publish(ctx context.Context, events ...entitystore.DomainEvent) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, handler := range b.handlers(event.EventType()) {
			if err := handler(ctx, event); err != nil {
				b.failed(ctx, sinkInProcess, event.EventType(), err)
				return fmt.Errorf("%w: %s: %w", ErrHandlerFailed, event.EventType(), err)
			}
		}
	}

	if len(events) > 0 {
		b.published(ctx, sinkInProcess, events)
	}

	return nil
}

func (b *InProcess) handlers(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.byType[eventType])+len(b.all))
	handlers = append(handlers, b.byType[eventType]...)

	return append(handlers, b.all...)
}
