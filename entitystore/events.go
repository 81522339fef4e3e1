package entitystore

import (
	"context"
	"slices"
	"time"
)

// DomainEvent is something that happened to an entity.
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// AggregateIdentifier is implemented by events that know the id of the entity that raised them.
type AggregateIdentifier interface {
	AggregateID() string
}

// EventRecorder is implemented by entities that collect domain events until they are persisted.
type EventRecorder interface {
	DomainEvents() []DomainEvent
	ClearDomainEvents()
}

// EventRecorderParent is implemented by entities owning child entities that record events themselves.
type EventRecorderParent interface {
	ChildEventRecorders() []EventRecorder
}

// EventRecording is an embeddable EventRecorder.
type EventRecording struct {
	events []DomainEvent
}

// RecordEvent appends event to the pending events.
func (r *EventRecording) RecordEvent(event DomainEvent) {
	r.events = append(r.events, event)
}

// DomainEvents returns a copy of the pending events in recording order.
func (r *EventRecording) DomainEvents() []DomainEvent {
	return slices.Clone(r.events)
}

// ClearDomainEvents drops the pending events, typically once they are published.
func (r *EventRecording) ClearDomainEvents() {
	r.events = nil
}

// EventPublisher delivers domain events, in the given order.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(ctx context.Context, events ...DomainEvent) error

// Publish calls f.
func (f EventPublisherFunc) Publish(ctx context.Context, events ...DomainEvent) error {
	return f(ctx, events...)
}

// AuditState holds the lifecycle stamps of an auditable entity.
type AuditState struct {
	CreatedDate   time.Time
	CreatedBy     string
	UpdatedDate   time.Time
	UpdatedBy     string
	Deleted       bool
	DeletedDate   time.Time
	DeletedBy     string
	DeletedReason string
}

// Auditable entities expose their audit state for stamping.
type Auditable interface {
	AuditState() *AuditState
}

// SetCreated stamps the creation.
func (a *AuditState) SetCreated(at time.Time, by string) {
	a.CreatedDate = at
	a.CreatedBy = by
}

// SetUpdated stamps the latest modification.
func (a *AuditState) SetUpdated(at time.Time, by string) {
	a.UpdatedDate = at
	a.UpdatedBy = by
}

// SetDeleted marks the entity deleted and records when, by whom and why.
func (a *AuditState) SetDeleted(at time.Time, by, reason string) {
	a.Deleted = true
	a.DeletedDate = at
	a.DeletedBy = by
	a.DeletedReason = reason
}

// IsNew reports whether the entity was never stamped as created.
func (a *AuditState) IsNew() bool {
	return a.CreatedDate.IsZero()
}
