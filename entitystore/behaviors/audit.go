package behaviors

import (
	"context"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// AuditOptions configures the audit behavior.
type AuditOptions struct {
	// SoftDelete turns deletes of auditable entities into updates that mark them as deleted.
	SoftDelete bool

	// DeleteReason is stored on soft deleted entities unless the context carries one, see WithDeleteReason.
	DeleteReason string

	Clock func() time.Time
}

type deleteReasonKey struct{}

// WithDeleteReason returns a context carrying the reason for the next soft delete.
func WithDeleteReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, deleteReasonKey{}, reason)
}

// AuditState stamps entities implementing entitystore.Auditable with the time and actor of their
// creation, last update and deletion. The actor is taken from entitystore.ActorFrom.
// Entities that are not auditable pass through untouched.
type AuditState[T any] struct {
	options AuditOptions
}

func NewAuditState[T any](options AuditOptions) *AuditState[T] {
	if options.Clock == nil {
		options.Clock = time.Now
	}

	return &AuditState[T]{options: options}
}

func (a *AuditState[T]) now() time.Time {
	return a.options.Clock().UTC()
}

func (a *AuditState[T]) BeforeInsert(ctx context.Context, entity T) error {
	if auditable, ok := any(entity).(entitystore.Auditable); ok {
		now, actor := a.now(), entitystore.ActorFrom(ctx)
		auditable.AuditState().SetCreated(now, actor)
		auditable.AuditState().SetUpdated(now, actor)
	}

	return nil
}

func (a *AuditState[T]) BeforeUpdate(ctx context.Context, entity T) error {
	if auditable, ok := any(entity).(entitystore.Auditable); ok {
		auditable.AuditState().SetUpdated(a.now(), entitystore.ActorFrom(ctx))
	}

	return nil
}

// BeforeUpsert stamps the creation when the entity was never stamped before, the update otherwise.
func (a *AuditState[T]) BeforeUpsert(ctx context.Context, entity T) error {
	auditable, ok := any(entity).(entitystore.Auditable)
	if !ok {
		return nil
	}

	if auditable.AuditState().IsNew() {
		return a.BeforeInsert(ctx, entity)
	}

	return a.BeforeUpdate(ctx, entity)
}

// BeforeDelete marks auditable entities as deleted and requests a soft delete when configured to.
func (a *AuditState[T]) BeforeDelete(ctx context.Context, entity T) error {
	auditable, ok := any(entity).(entitystore.Auditable)
	if !ok || !a.options.SoftDelete {
		return nil
	}

	reason := a.options.DeleteReason
	if r, ok := ctx.Value(deleteReasonKey{}).(string); ok && r != "" {
		reason = r
	}

	now, actor := a.now(), entitystore.ActorFrom(ctx)
	auditable.AuditState().SetDeleted(now, actor, reason)
	auditable.AuditState().SetUpdated(now, actor)

	return entitystore.ErrSoftDeleteRequested
}
