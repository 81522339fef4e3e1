package entitystore

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SortDirection of an Ordering.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

func (d SortDirection) String() string {
	if d == Descending {
		return "desc"
	}

	return "asc"
}

// Ordering sorts by one member. The first Ordering of FindOptions is the primary key.
type Ordering[T any] struct {
	Field     FieldAccessor[T]
	Direction SortDirection
}

// FindOptions carries includes, orderings and paging to a provider. Take == 0 means no limit.
// The helper methods return modified copies, a FindOptions value is never changed in place.
type FindOptions[T any] struct {
	Includes  []string
	Orderings []Ordering[T]
	Skip      int
	Take      int
}

// Include adds a related-entity path to eager-load.
func (o FindOptions[T]) Include(path string) FindOptions[T] {
	o.Includes = append(slices.Clone(o.Includes), path)
	return o
}

// OrderBy appends an ascending ordering.
func (o FindOptions[T]) OrderBy(field FieldAccessor[T]) FindOptions[T] {
	o.Orderings = append(slices.Clone(o.Orderings), Ordering[T]{Field: field, Direction: Ascending})
	return o
}

// OrderByDescending appends a descending ordering.
func (o FindOptions[T]) OrderByDescending(field FieldAccessor[T]) FindOptions[T] {
	o.Orderings = append(slices.Clone(o.Orderings), Ordering[T]{Field: field, Direction: Descending})
	return o
}

func (o FindOptions[T]) WithSkip(skip int) FindOptions[T] {
	o.Skip = skip
	return o
}

func (o FindOptions[T]) WithTake(take int) FindOptions[T] {
	o.Take = take
	return o
}

// Validate rejects negative paging values and orderings without a member.
func (o FindOptions[T]) Validate() error {
	if o.Skip < 0 {
		return fmt.Errorf("%w: skip must not be negative, got %d", ErrInvalidFindOptions, o.Skip)
	}

	if o.Take < 0 {
		return fmt.Errorf("%w: take must not be negative, got %d", ErrInvalidFindOptions, o.Take)
	}

	for i, ordering := range o.Orderings {
		if ordering.Field == nil {
			return fmt.Errorf("%w: ordering %d has no member", ErrInvalidFindOptions, i)
		}
	}

	return nil
}

// String is a canonical rendering, stable enough to be part of a cache key.
func (o FindOptions[T]) String() string {
	orderings := make([]string, 0, len(o.Orderings))
	for _, ordering := range o.Orderings {
		name := "?"
		if ordering.Field != nil {
			name = ordering.Field.Name()
		}
		orderings = append(orderings, name+" "+ordering.Direction.String())
	}

	return "include=[" + strings.Join(o.Includes, ",") + "]" +
		" order=[" + strings.Join(orderings, ",") + "]" +
		" skip=" + strconv.Itoa(o.Skip) +
		" take=" + strconv.Itoa(o.Take)
}

// SortEntities sorts items in place by orderings. Nil members sort first, the sort is stable.
func SortEntities[T any](items []T, orderings []Ordering[T]) {
	if len(orderings) == 0 {
		return
	}

	slices.SortStableFunc(items, func(a, b T) int {
		for _, ordering := range orderings {
			r := compareForSort(ordering.Field.Value(a), ordering.Field.Value(b))
			if ordering.Direction == Descending {
				r = -r
			}

			if r != 0 {
				return r
			}
		}

		return 0
	})
}

func compareForSort(a, b any) int {
	if r, ok := CompareValues(a, b); ok {
		return r
	}

	switch {
	case normalize(a) == nil && normalize(b) != nil:
		return -1
	case normalize(a) != nil && normalize(b) == nil:
		return 1
	default:
		return 0
	}
}

// Paginate applies skip and take to items. It returns a sub-slice of items.
func Paginate[T any](items []T, skip, take int) []T {
	if skip >= len(items) {
		return items[:0]
	}

	items = items[skip:]
	if take > 0 && take < len(items) {
		items = items[:take]
	}

	return items
}
