package entitystore

import (
	"context"
	"errors"
	"slices"
)

// PagedResult is one page of a query plus the number of all matches.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int64
	Skip       int
	Take       int
}

// Query accumulates criteria and options for a terminal operation. It is a value: every method
// returns a modified copy, so a partially built query can be reused as a prefix.
//
//	page, err := people.Query().
//		Where(adults).
//		Or(vip).
//		OrderBy(lastName).
//		Skip(20).
//		Take(10).
//		ToPagedList(ctx)
type Query[T any] struct {
	ec      *EntityContext[T]
	specs   []Specification[T]
	options FindOptions[T]
}

// Where adds a specification, AND-ed with the ones added before.
func (q Query[T]) Where(spec Specification[T]) Query[T] {
	q.specs = append(slices.Clone(q.specs), spec)
	return q
}

// And is an alias of Where.
func (q Query[T]) And(spec Specification[T]) Query[T] {
	return q.Where(spec)
}

// Or combines spec with the most recently added specification.
func (q Query[T]) Or(spec Specification[T]) Query[T] {
	if len(q.specs) == 0 {
		return q.Where(spec)
	}

	specs := slices.Clone(q.specs)
	specs[len(specs)-1] = specs[len(specs)-1].Or(spec)
	q.specs = specs

	return q
}

// Include eager-loads the related data named by path, see FindOptions.Include.
func (q Query[T]) Include(path string) Query[T] {
	q.options = q.options.Include(path)
	return q
}

// OrderBy adds an ascending ordering. The first ordering is primary, later ones break ties.
func (q Query[T]) OrderBy(field FieldAccessor[T]) Query[T] {
	q.options = q.options.OrderBy(field)
	return q
}

// OrderByDescending adds a descending ordering.
func (q Query[T]) OrderByDescending(field FieldAccessor[T]) Query[T] {
	q.options = q.options.OrderByDescending(field)
	return q
}

// Skip drops the first n matches.
func (q Query[T]) Skip(n int) Query[T] {
	q.options = q.options.WithSkip(n)
	return q
}

// Take limits the result size, 0 means no limit.
func (q Query[T]) Take(n int) Query[T] {
	q.options = q.options.WithTake(n)
	return q
}

// Specifications returns the accumulated specifications.
func (q Query[T]) Specifications() []Specification[T] {
	return slices.Clone(q.specs)
}

// Options returns the accumulated find options.
func (q Query[T]) Options() FindOptions[T] {
	return q.options
}

// ToList returns all matches.
func (q Query[T]) ToList(ctx context.Context) ([]T, error) {
	return q.ec.FindAll(ctx, q.specs, q.options)
}

// ToPagedList returns the matches selected by Skip and Take together with the number of all matches.
func (q Query[T]) ToPagedList(ctx context.Context) (PagedResult[T], error) {
	items, total, err := q.ec.FindAllPaged(ctx, q.specs, q.options)
	if err != nil {
		return PagedResult[T]{}, err
	}

	return PagedResult[T]{Items: items, TotalCount: total, Skip: q.options.Skip, Take: q.options.Take}, nil
}

// FirstOrDefault returns the first match or the zero value of T with a nil error when nothing matches.
func (q Query[T]) FirstOrDefault(ctx context.Context) (T, error) {
	entity, err := q.First(ctx)
	if errors.Is(err, ErrNotFound) {
		var zero T
		return zero, nil
	}

	return entity, err
}

// First returns the first match or ErrNotFound.
func (q Query[T]) First(ctx context.Context) (T, error) {
	return q.ec.FindOne(ctx, q.specs, q.options.WithTake(1))
}

func (q Query[T]) Any(ctx context.Context) (bool, error) {
	return q.ec.Exists(ctx, q.specs...)
}

// Count counts all matches, paging is ignored.
func (q Query[T]) Count(ctx context.Context) (int64, error) {
	return q.ec.Count(ctx, q.specs...)
}

// ProjectedQuery is a Query whose terminals map results through a Projection.
type ProjectedQuery[T, P any] struct {
	query      Query[T]
	projection Projection[T, P]
}

// Select turns q into a projected query.
func Select[T, P any](q Query[T], projection Projection[T, P]) ProjectedQuery[T, P] {
	return ProjectedQuery[T, P]{query: q, projection: projection}
}

func (pq ProjectedQuery[T, P]) ToList(ctx context.Context) ([]P, error) {
	return ProjectAll(ctx, pq.query.ec, pq.query.specs, pq.projection, pq.query.options)
}

func (pq ProjectedQuery[T, P]) ToPagedList(ctx context.Context) (PagedResult[P], error) {
	items, total, err := ProjectAllPaged(ctx, pq.query.ec, pq.query.specs, pq.projection, pq.query.options)
	if err != nil {
		return PagedResult[P]{}, err
	}

	return PagedResult[P]{Items: items, TotalCount: total, Skip: pq.query.options.Skip, Take: pq.query.options.Take}, nil
}
