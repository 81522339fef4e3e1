package entitystore

import (
	"context"
	"slices"
	"sync/atomic"
)

// EntityContext is the active context of one entity type inside one Scope: a resolved provider
// wrapped by its behaviors. Mutations go through the behavior pipeline, reads go to the provider.
//
// An EntityContext must not be shared between concurrent operations and must not outlive its scope.
// Violations panic with a *UsageError.
type EntityContext[T any] struct {
	scope     *Scope
	provider  Provider[T]
	behaviors []NamedBehavior
	pipeline  *Pipeline[T]
	busy      atomic.Bool
}

func (c *EntityContext[T]) enter() func() {
	c.scope.ensureOpen()

	if !c.busy.CompareAndSwap(false, true) {
		panicUsage(ErrConcurrentContextUse, "")
	}

	return func() { c.busy.Store(false) }
}

// Scope returns the scope the context was resolved from.
func (c *EntityContext[T]) Scope() *Scope {
	return c.scope
}

// Provider returns the undecorated provider.
func (c *EntityContext[T]) Provider() Provider[T] {
	return c.provider
}

// Behaviors returns the resolved behaviors in wrapping order.
func (c *EntityContext[T]) Behaviors() []NamedBehavior {
	return slices.Clone(c.behaviors)
}

// Insert stores a new entity through the behavior pipeline.
func (c *EntityContext[T]) Insert(ctx context.Context, entity T) (T, error) {
	defer c.enter()()
	return c.pipeline.Insert(ctx, entity)
}

// Update stores a changed entity through the behavior pipeline. Versioned entities fail with
// ErrConcurrencyConflict when the stored version moved on.
func (c *EntityContext[T]) Update(ctx context.Context, entity T) (T, error) {
	defer c.enter()()
	return c.pipeline.Update(ctx, entity)
}

// Upsert inserts or updates entity and reports which one happened.
func (c *EntityContext[T]) Upsert(ctx context.Context, entity T) (T, UpsertAction, error) {
	defer c.enter()()
	return c.pipeline.Upsert(ctx, entity)
}

// Delete removes entity, or marks it deleted when the audit behavior soft-deletes.
func (c *EntityContext[T]) Delete(ctx context.Context, entity T) error {
	defer c.enter()()
	return c.pipeline.Delete(ctx, entity)
}

// FindOne returns the first match of specs or ErrNotFound. Reads bypass the behaviors.
func (c *EntityContext[T]) FindOne(ctx context.Context, specs []Specification[T], options FindOptions[T]) (T, error) {
	defer c.enter()()

	if err := options.Validate(); err != nil {
		var zero T
		return zero, err
	}

	return c.provider.FindOne(ctx, specs, options)
}

// FindAll returns all matches of specs.
func (c *EntityContext[T]) FindAll(ctx context.Context, specs []Specification[T], options FindOptions[T]) ([]T, error) {
	defer c.enter()()

	if err := options.Validate(); err != nil {
		return nil, err
	}

	return c.provider.FindAll(ctx, specs, options)
}

// FindAllPaged returns one page of matches and the number of all matches.
func (c *EntityContext[T]) FindAllPaged(ctx context.Context, specs []Specification[T], options FindOptions[T]) ([]T, int64, error) {
	defer c.enter()()

	if err := options.Validate(); err != nil {
		return nil, 0, err
	}

	return c.provider.FindAllPaged(ctx, specs, options)
}

// Exists reports whether any entity matches all specs.
func (c *EntityContext[T]) Exists(ctx context.Context, specs ...Specification[T]) (bool, error) {
	defer c.enter()()
	return c.provider.Exists(ctx, specs)
}

// Count returns the number of entities matching all specs.
func (c *EntityContext[T]) Count(ctx context.Context, specs ...Specification[T]) (int64, error) {
	defer c.enter()()
	return c.provider.Count(ctx, specs)
}

// Query starts a query over T.
func (c *EntityContext[T]) Query() Query[T] {
	c.scope.ensureOpen()
	return Query[T]{ec: c}
}

// Projection maps an entity onto P. Fields lists the members the mapper reads, only those are loaded.
type Projection[T, P any] struct {
	fields []FieldAccessor[T]
	mapper func(T) P
}

// NewProjection creates a Projection. fields must name every member mapper reads.
func NewProjection[T, P any](mapper func(T) P, fields ...FieldAccessor[T]) Projection[T, P] {
	return Projection[T, P]{fields: fields, mapper: mapper}
}

// FieldNames returns the names of the projected members.
func (p Projection[T, P]) FieldNames() []string {
	names := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		names = append(names, f.Name())
	}

	return names
}

func (p Projection[T, P]) apply(items []T) []P {
	out := make([]P, 0, len(items))
	for _, item := range items {
		out = append(out, p.mapper(item))
	}

	return out
}

// ProjectAll loads the matches of specs and maps them with projection.
func ProjectAll[T, P any](
	ctx context.Context,
	c *EntityContext[T],
	specs []Specification[T],
	projection Projection[T, P],
	options FindOptions[T],
) ([]P, error) {
	defer c.enter()()

	if err := options.Validate(); err != nil {
		return nil, err
	}

	items, err := c.provider.ProjectAll(ctx, specs, projection.FieldNames(), options)
	if err != nil {
		return nil, err
	}

	return projection.apply(items), nil
}

// ProjectAllPaged is the paged form of ProjectAll, it also returns the number of all matches.
func ProjectAllPaged[T, P any](
	ctx context.Context,
	c *EntityContext[T],
	specs []Specification[T],
	projection Projection[T, P],
	options FindOptions[T],
) ([]P, int64, error) {
	defer c.enter()()

	if err := options.Validate(); err != nil {
		return nil, 0, err
	}

	items, total, err := c.provider.ProjectAllPaged(ctx, specs, projection.FieldNames(), options)
	if err != nil {
		return nil, 0, err
	}

	return projection.apply(items), total, nil
}
