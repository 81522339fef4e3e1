package behaviors

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrNoEventPublisher = errors.New("domain events behavior has no publisher")

// PublishPhase selects when recorded events are published.
type PublishPhase int

const (
	// PublishAfter publishes once the provider succeeded. It is the default.
	PublishAfter PublishPhase = iota

	// PublishBefore publishes before the provider is called, a publishing failure vetoes the operation.
	PublishBefore
)

// EventOrder selects how events of child entities are ordered relative to their parent's.
type EventOrder int

const (
	ParentFirst EventOrder = iota
	ChildFirst
)

// DomainEventOptions configures the domain events behavior.
type DomainEventOptions struct {
	Publisher entitystore.EventPublisher

	// PublisherFromScope, when set, replaces Publisher with the publisher of the resolving scope.
	// Publishers sharing a transaction with the provider are wired this way.
	PublisherFromScope func(scope *entitystore.Scope) entitystore.EventPublisher

	Phase PublishPhase
	Order EventOrder
}

// DomainEvents publishes the events recorded by entities implementing entitystore.EventRecorder,
// including those of children exposed through entitystore.EventRecorderParent, and clears them.
// Events stay on the entity when the operation or the publication fails.
type DomainEvents[T any] struct {
	options DomainEventOptions
}

func NewDomainEvents[T any](options DomainEventOptions) *DomainEvents[T] {
	return &DomainEvents[T]{options: options}
}

// CollectEvents returns all events recorded by recorder and its children in the given order.
func CollectEvents(recorder entitystore.EventRecorder, order EventOrder) []entitystore.DomainEvent {
	var children []entitystore.DomainEvent
	if parent, ok := recorder.(entitystore.EventRecorderParent); ok {
		for _, child := range parent.ChildEventRecorders() {
			if child != nil {
				children = append(children, CollectEvents(child, order)...)
			}
		}
	}

	own := recorder.DomainEvents()

	if order == ChildFirst {
		return append(children, own...)
	}

	return append(own, children...)
}

func clearEvents(recorder entitystore.EventRecorder) {
	recorder.ClearDomainEvents()

	if parent, ok := recorder.(entitystore.EventRecorderParent); ok {
		for _, child := range parent.ChildEventRecorders() {
			if child != nil {
				clearEvents(child)
			}
		}
	}
}

func (d *DomainEvents[T]) publish(ctx context.Context, entity T) error {
	recorder, ok := any(entity).(entitystore.EventRecorder)
	if !ok {
		return nil
	}

	events := CollectEvents(recorder, d.options.Order)
	if len(events) == 0 {
		return nil
	}

	if d.options.Publisher == nil {
		return ErrNoEventPublisher
	}

	if err := d.options.Publisher.Publish(ctx, events...); err != nil {
		return err
	}

	clearEvents(recorder)

	return nil
}

func (d *DomainEvents[T]) before(ctx context.Context, entity T) error {
	if d.options.Phase != PublishBefore {
		return nil
	}

	return d.publish(ctx, entity)
}

func (d *DomainEvents[T]) after(ctx context.Context, entity T, opErr error) error {
	if d.options.Phase != PublishAfter || opErr != nil {
		return nil
	}

	return d.publish(ctx, entity)
}

func (d *DomainEvents[T]) BeforeInsert(ctx context.Context, entity T) error {
	return d.before(ctx, entity)
}

func (d *DomainEvents[T]) AfterInsert(ctx context.Context, entity T, opErr error) error {
	return d.after(ctx, entity, opErr)
}

func (d *DomainEvents[T]) BeforeUpdate(ctx context.Context, entity T) error {
	return d.before(ctx, entity)
}

func (d *DomainEvents[T]) AfterUpdate(ctx context.Context, entity T, opErr error) error {
	return d.after(ctx, entity, opErr)
}

func (d *DomainEvents[T]) BeforeUpsert(ctx context.Context, entity T) error {
	return d.before(ctx, entity)
}

func (d *DomainEvents[T]) AfterUpsert(ctx context.Context, entity T, opErr error) error {
	return d.after(ctx, entity, opErr)
}

func (d *DomainEvents[T]) BeforeDelete(ctx context.Context, entity T) error {
	return d.before(ctx, entity)
}

func (d *DomainEvents[T]) AfterDelete(ctx context.Context, entity T, opErr error) error {
	return d.after(ctx, entity, opErr)
}
