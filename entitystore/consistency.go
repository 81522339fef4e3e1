package entitystore

import "context"

// ConsistencyLevel tells read operations whether they may be served by a replica.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. It is the default.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows providers to read from replicas and tolerate slightly stale data.
	EventualConsistency
)

type contextKey string

const (
	consistencyLevelKey contextKey = "entitystore.consistency_level"
	actorKey            contextKey = "entitystore.actor"
)

// DefaultActor is reported by ActorFrom when no actor was put into the context.
const DefaultActor = "system"

// WithStrongConsistency returns a context that asks providers to read from the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows providers to read from replicas.
//
// Example usage:
//
//	ctx = entitystore.WithEventualConsistency(ctx)
//	page, err := people.Query().Where(adults).Take(20).ToPagedList(ctx)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context, StrongConsistency if none is set.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(consistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}

// WithActor returns a context carrying the identity that performs entity operations.
// The audit behavior stamps it onto entities.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor stored in ctx or DefaultActor.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}

	return DefaultActor
}
