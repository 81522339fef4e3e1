package entitystore

import "context"

// Entity is any domain object with a stable identity.
type Entity[ID comparable] interface {
	EntityID() ID
}

// Versioned entities carry a version used by providers for optimistic concurrency.
// A provider increments the version on every successful update.
type Versioned interface {
	EntityVersion() int64
	SetEntityVersion(version int64)
}

// UpsertAction reports what an Upsert did.
type UpsertAction int

const (
	UpsertInserted UpsertAction = iota + 1
	UpsertUpdated
)

// String returns "inserted", "updated" or "none".
func (a UpsertAction) String() string {
	switch a {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "none"
	}
}

// Provider is the storage contract for one entity type. Implementations perform the I/O,
// everything else in this package is storage agnostic.
//
// Every operation honors ctx cancellation. Multiple specifications are AND-ed. Includes,
// orderings and paging of FindOptions are applied in the order given, Take == 0 means no limit.
//
// Failures are reported with the sentinel errors of this package: ErrNotFound, ErrAlreadyExists,
// ErrConcurrencyConflict, ErrUnauthorized, ErrStorageFailed (joined with the driver error).
type Provider[T any] interface {
	Insert(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Upsert(ctx context.Context, entity T) (T, UpsertAction, error)
	Delete(ctx context.Context, entity T) error

	// FindOne returns the first match under the given ordering, ErrNotFound when nothing matches.
	FindOne(ctx context.Context, specs []Specification[T], options FindOptions[T]) (T, error)
	FindAll(ctx context.Context, specs []Specification[T], options FindOptions[T]) ([]T, error)

	// FindAllPaged returns one page plus the number of all matches ignoring paging.
	FindAllPaged(ctx context.Context, specs []Specification[T], options FindOptions[T]) ([]T, int64, error)
	Exists(ctx context.Context, specs []Specification[T]) (bool, error)
	Count(ctx context.Context, specs []Specification[T]) (int64, error)

	// ProjectAll loads only the named members. Members not listed keep their zero values.
	ProjectAll(ctx context.Context, specs []Specification[T], fields []string, options FindOptions[T]) ([]T, error)
	ProjectAllPaged(ctx context.Context, specs []Specification[T], fields []string, options FindOptions[T]) ([]T, int64, error)
}

// ProviderFactory creates the provider of one resolution scope.
type ProviderFactory[T any] func(scope *Scope) (Provider[T], error)

// SingletonProvider returns a factory handing out the same provider to every scope.
func SingletonProvider[T any](provider Provider[T]) ProviderFactory[T] {
	return func(*Scope) (Provider[T], error) {
		return provider, nil
	}
}
