package memengine

import (
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// Provider stores entities of type T keyed by their id.
//
// It keeps deep copies: writes store a copy of the given entity and reads return fresh copies,
// so changes to an entity stay invisible to others until it is saved. Writes set the version
// on the given entity and return it.
type Provider[T entitystore.Entity[ID], ID comparable] struct {
	mu       sync.RWMutex
	order    []ID
	entities map[ID]T
	logger   entitystore.Logger
}

// Option defines a functional option for configuring a Provider.
type Option func(*settings) error

type settings struct {
	logger entitystore.Logger
}

// WithLogger sets a logger receiving one debug record per operation.
func WithLogger(logger entitystore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// NewProvider creates an empty store keyed by the entity id.
func NewProvider[T entitystore.Entity[ID], ID comparable](options ...Option) (*Provider[T, ID], error) {
	var s settings
	for _, option := range options {
		if err := option(&s); err != nil {
			return nil, err
		}
	}

	return &Provider[T, ID]{
		entities: make(map[ID]T),
		logger:   s.logger,
	}, nil
}

const logMsgOperation = "memengine: "

func (p *Provider[T, ID]) log(op entitystore.Operation, args ...any) {
	if p.logger != nil {
		p.logger.Debug(logMsgOperation+string(op), args...)
	}
}

// Insert stores a copy of entity. Versioned entities start at version 1.
func (p *Provider[T, ID]) Insert(ctx context.Context, entity T) (T, error) {
	if err := ctx.Err(); err != nil {
		return entity, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := entity.EntityID()
	if _, exists := p.entities[id]; exists {
		return entity, entitystore.ErrAlreadyExists
	}

	if v, ok := any(entity).(entitystore.Versioned); ok {
		v.SetEntityVersion(1)
	}

	p.entities[id] = clone(entity)
	p.order = append(p.order, id)
	p.log(entitystore.OperationInsert, "entity_id", id)

	return entity, nil
}

// Update replaces the stored copy. The version of entity must match the stored one.
func (p *Provider[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	if err := ctx.Err(); err != nil {
		return entity, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.replace(entity); err != nil {
		return entity, err
	}

	p.log(entitystore.OperationUpdate, "entity_id", entity.EntityID())

	return entity, nil
}

func (p *Provider[T, ID]) replace(entity T) error {
	id := entity.EntityID()

	stored, exists := p.entities[id]
	if !exists {
		return entitystore.ErrNotFound
	}

	if v, ok := any(entity).(entitystore.Versioned); ok {
		if sv, ok := any(stored).(entitystore.Versioned); ok && sv.EntityVersion() != v.EntityVersion() {
			return entitystore.ErrConcurrencyConflict
		}

		v.SetEntityVersion(v.EntityVersion() + 1)
	}

	p.entities[id] = clone(entity)

	return nil
}

// Upsert updates an existing id and inserts otherwise.
func (p *Provider[T, ID]) Upsert(ctx context.Context, entity T) (T, entitystore.UpsertAction, error) {
	if err := ctx.Err(); err != nil {
		return entity, 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := entity.EntityID()
	if _, exists := p.entities[id]; exists {
		if err := p.replace(entity); err != nil {
			return entity, 0, err
		}

		p.log(entitystore.OperationUpsert, "entity_id", id, "action", entitystore.UpsertUpdated.String())

		return entity, entitystore.UpsertUpdated, nil
	}

	if v, ok := any(entity).(entitystore.Versioned); ok {
		v.SetEntityVersion(1)
	}

	p.entities[id] = clone(entity)
	p.order = append(p.order, id)
	p.log(entitystore.OperationUpsert, "entity_id", id, "action", entitystore.UpsertInserted.String())

	return entity, entitystore.UpsertInserted, nil
}

// Delete removes the entity with the id of entity, its version is not checked.
func (p *Provider[T, ID]) Delete(ctx context.Context, entity T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := entity.EntityID()
	if _, exists := p.entities[id]; !exists {
		return entitystore.ErrNotFound
	}

	delete(p.entities, id)
	p.order = slices.DeleteFunc(p.order, func(other ID) bool { return other == id })
	p.log(entitystore.OperationDelete, "entity_id", id)

	return nil
}

// FindOne returns a copy of the first match or ErrNotFound.
func (p *Provider[T, ID]) FindOne(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) (T, error) {
	var zero T

	items, err := p.FindAll(ctx, specs, options.WithTake(1))
	if err != nil {
		return zero, err
	}

	if len(items) == 0 {
		return zero, entitystore.ErrNotFound
	}

	return items[0], nil
}

// FindAll returns copies of all matches in insertion order unless options order them.
func (p *Provider[T, ID]) FindAll(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, error) {
	items, _, err := p.find(ctx, specs, options)
	return items, err
}

func (p *Provider[T, ID]) FindAllPaged(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, int64, error) {
	return p.find(ctx, specs, options)
}

func (p *Provider[T, ID]) Exists(ctx context.Context, specs []entitystore.Specification[T]) (bool, error) {
	count, err := p.Count(ctx, specs)
	return count > 0, err
}

// Count evaluates specs against every stored entity.
func (p *Provider[T, ID]) Count(ctx context.Context, specs []entitystore.Specification[T]) (int64, error) {
	_, total, err := p.find(ctx, specs, entitystore.FindOptions[T]{})
	return total, err
}

// ProjectAll returns whole entities, nothing is saved by loading fewer members from memory.
func (p *Provider[T, ID]) ProjectAll(ctx context.Context, specs []entitystore.Specification[T], _ []string, options entitystore.FindOptions[T]) ([]T, error) {
	return p.FindAll(ctx, specs, options)
}

func (p *Provider[T, ID]) ProjectAllPaged(ctx context.Context, specs []entitystore.Specification[T], _ []string, options entitystore.FindOptions[T]) ([]T, int64, error) {
	return p.FindAllPaged(ctx, specs, options)
}

// find ignores includes, object graphs are always complete in memory.
func (p *Provider[T, ID]) find(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if err := options.Validate(); err != nil {
		return nil, 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	matches := make([]T, 0)
	for _, id := range p.order {
		entity := p.entities[id]
		if entitystore.SatisfiesAll(entity, specs) {
			matches = append(matches, entity)
		}
	}

	total := int64(len(matches))

	entitystore.SortEntities(matches, options.Orderings)
	page := entitystore.Paginate(matches, options.Skip, options.Take)

	copies := make([]T, len(page))
	for i, entity := range page {
		copies[i] = clone(entity)
	}

	p.log(entitystore.OperationFindAll, "matches", total, "returned", len(copies))

	return copies, total, nil
}

// Len returns the number of stored entities.
func (p *Provider[T, ID]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.entities)
}
