package mongoengine

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// Provider implements entitystore.Provider for the entities described by a Document.
type Provider[T any] struct {
	collection Collection
	document   Document[T]
	settings
}

var _ entitystore.Provider[any] = (*Provider[any])(nil)

// NewProvider creates a Provider storing entities in collection.
func NewProvider[T any](document Document[T], collection Collection, opts ...Option) (*Provider[T], error) {
	if collection == nil {
		return nil, ErrNilCollection
	}

	if err := document.validate(); err != nil {
		return nil, err
	}

	var s settings
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	return &Provider[T]{collection: collection, document: document, settings: s}, nil
}

func (p *Provider[T]) Insert(ctx context.Context, entity T) (T, error) {
	err := p.instrument(ctx, entitystore.OperationInsert, func(ctx context.Context) error {
		restore := p.setVersion(entity, func(int64) int64 { return 1 })

		if _, err := p.collection.InsertOne(ctx, entity); err != nil {
			restore()
			return mapDBError(err)
		}

		return nil
	})

	return entity, err
}

func (p *Provider[T]) Update(ctx context.Context, entity T) (T, error) {
	err := p.instrument(ctx, entitystore.OperationUpdate, func(ctx context.Context) error {
		return p.replace(ctx, entity)
	})

	return entity, err
}

// replace swaps the stored document, guarded by the previous version for versioned entities.
func (p *Provider[T]) replace(ctx context.Context, entity T) error {
	id := p.document.ID(entity)
	filter := bson.D{{Key: p.document.idKey(), Value: id}}

	var previous int64
	restore := p.setVersion(entity, func(current int64) int64 {
		previous = current
		return current + 1
	})

	if p.versioned(entity) {
		filter = append(filter, bson.E{Key: p.document.VersionKey, Value: previous})
	}

	result, err := p.collection.ReplaceOne(ctx, filter, entity)
	if err != nil {
		restore()
		return mapDBError(err)
	}

	if result.MatchedCount > 0 {
		return nil
	}

	restore()

	exists, err := p.existsByID(ctx, id)
	if err != nil {
		return err
	}

	if exists {
		p.logWarn(ctx, logMsgConcurrencyConflict, logAttrEntityID, fmt.Sprint(id))
		return entitystore.ErrConcurrencyConflict
	}

	return entitystore.ErrNotFound
}

// Upsert checks for the id first and then inserts or replaces.
func (p *Provider[T]) Upsert(ctx context.Context, entity T) (T, entitystore.UpsertAction, error) {
	var action entitystore.UpsertAction

	err := p.instrument(ctx, entitystore.OperationUpsert, func(ctx context.Context) error {
		exists, err := p.existsByID(ctx, p.document.ID(entity))
		if err != nil {
			return err
		}

		if exists {
			action = entitystore.UpsertUpdated
			return p.replace(ctx, entity)
		}

		action = entitystore.UpsertInserted
		restore := p.setVersion(entity, func(int64) int64 { return 1 })

		if _, err := p.collection.InsertOne(ctx, entity); err != nil {
			restore()
			return mapDBError(err)
		}

		return nil
	})
	if err != nil {
		return entity, 0, err
	}

	return entity, action, nil
}

func (p *Provider[T]) Delete(ctx context.Context, entity T) error {
	return p.instrument(ctx, entitystore.OperationDelete, func(ctx context.Context) error {
		result, err := p.collection.DeleteOne(ctx, bson.D{{Key: p.document.idKey(), Value: p.document.ID(entity)}})
		if err != nil {
			return mapDBError(err)
		}

		if result.DeletedCount == 0 {
			return entitystore.ErrNotFound
		}

		return nil
	})
}

func (p *Provider[T]) FindOne(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) (T, error) {
	var found T

	err := p.instrument(ctx, entitystore.OperationFindOne, func(ctx context.Context) error {
		items, err := p.find(ctx, entitystore.OperationFindOne, specs, options.WithTake(1), nil)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			return entitystore.ErrNotFound
		}

		found = items[0]

		return nil
	})

	return found, err
}

func (p *Provider[T]) FindAll(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, error) {
	var items []T

	err := p.instrument(ctx, entitystore.OperationFindAll, func(ctx context.Context) error {
		var err error
		items, err = p.find(ctx, entitystore.OperationFindAll, specs, options, nil)
		return err
	})

	return items, err
}

func (p *Provider[T]) FindAllPaged(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	err := p.instrument(ctx, entitystore.OperationFindAllPaged, func(ctx context.Context) error {
		var err error
		items, total, err = p.findPage(ctx, entitystore.OperationFindAllPaged, specs, options, nil)
		return err
	})

	return items, total, err
}

func (p *Provider[T]) Exists(ctx context.Context, specs []entitystore.Specification[T]) (bool, error) {
	var exists bool

	err := p.instrument(ctx, entitystore.OperationExists, func(ctx context.Context) error {
		count, err := p.count(ctx, entitystore.OperationExists, specs, options.Count().SetLimit(1))
		exists = count > 0
		return err
	})

	return exists, err
}

func (p *Provider[T]) Count(ctx context.Context, specs []entitystore.Specification[T]) (int64, error) {
	var count int64

	err := p.instrument(ctx, entitystore.OperationCount, func(ctx context.Context) error {
		var err error
		count, err = p.count(ctx, entitystore.OperationCount, specs)
		return err
	})

	return count, err
}

// ProjectAll loads only the keys backing fields, plus the id.
func (p *Provider[T]) ProjectAll(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, error) {
	var items []T

	err := p.instrument(ctx, entitystore.OperationProjectAll, func(ctx context.Context) error {
		var err error
		items, err = p.find(ctx, entitystore.OperationProjectAll, specs, options, nonNil(fields))
		return err
	})

	return items, err
}

func (p *Provider[T]) ProjectAllPaged(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	err := p.instrument(ctx, entitystore.OperationProjectAllPaged, func(ctx context.Context) error {
		var err error
		items, total, err = p.findPage(ctx, entitystore.OperationProjectAllPaged, specs, options, nonNil(fields))
		return err
	})

	return items, total, err
}

// findPage runs the find and the count concurrently.
func (p *Provider[T]) findPage(
	ctx context.Context,
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	findOpts entitystore.FindOptions[T],
	projection []string,
) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		items, err = p.find(gctx, op, specs, findOpts, projection)
		return err
	})

	g.Go(func() error {
		var err error
		total, err = p.count(gctx, op, specs)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (p *Provider[T]) find(
	ctx context.Context,
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	findOpts entitystore.FindOptions[T],
	projection []string,
) ([]T, error) {
	if err := findOpts.Validate(); err != nil {
		return nil, err
	}

	loaders, err := p.includeLoaders(findOpts.Includes)
	if err != nil {
		return nil, err
	}

	filter, err := p.Filter(specs)
	if err != nil {
		return nil, err
	}

	opts, err := p.findOptions(findOpts, projection)
	if err != nil {
		return nil, err
	}

	p.logFilter(ctx, op, filter)

	cursor, err := p.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			p.logWarn(ctx, logMsgCloseCursorFailed, logAttrError, err.Error())
		}
	}()

	items := make([]T, 0)
	for cursor.Next(ctx) {
		entity := p.document.New()
		if err := cursor.Decode(entity); err != nil {
			return nil, errors.Join(ErrDecodingDocumentFailed, err)
		}

		items = append(items, entity)
	}

	if err := cursor.Err(); err != nil {
		return nil, mapDBError(err)
	}

	for _, load := range loaders {
		if err := load(ctx, items); err != nil {
			return nil, err
		}
	}

	return items, nil
}

func (p *Provider[T]) includeLoaders(paths []string) ([]IncludeLoader[T], error) {
	loaders := make([]IncludeLoader[T], 0, len(paths))

	for _, path := range paths {
		loader, ok := p.document.Includes[path]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInclude, path)
		}

		loaders = append(loaders, loader)
	}

	return loaders, nil
}

func (p *Provider[T]) count(ctx context.Context, op entitystore.Operation, specs []entitystore.Specification[T], opts ...*options.CountOptions) (int64, error) {
	filter, err := p.Filter(specs)
	if err != nil {
		return 0, err
	}

	p.logFilter(ctx, op, filter)

	count, err := p.collection.CountDocuments(ctx, filter, opts...)
	if err != nil {
		return 0, mapDBError(err)
	}

	return count, nil
}

func (p *Provider[T]) existsByID(ctx context.Context, id any) (bool, error) {
	count, err := p.collection.CountDocuments(ctx, bson.D{{Key: p.document.idKey(), Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapDBError(err)
	}

	return count > 0, nil
}

func (p *Provider[T]) versioned(entity T) bool {
	if p.document.VersionKey == "" {
		return false
	}

	_, ok := any(entity).(entitystore.Versioned)

	return ok
}

// setVersion moves the version of versioned entities and returns a function restoring the old one.
func (p *Provider[T]) setVersion(entity T, next func(current int64) int64) (restore func()) {
	if !p.versioned(entity) {
		return func() {}
	}

	v := any(entity).(entitystore.Versioned)
	old := v.EntityVersion()
	v.SetEntityVersion(next(old))

	return func() { v.SetEntityVersion(old) }
}

func nonNil(fields []string) []string {
	if fields == nil {
		return []string{}
	}

	return fields
}
