package entitystore

import "context"

// Operation names an entity operation, used in logs, metrics and spans.
type Operation string

const (
	OperationInsert          Operation = "insert"
	OperationUpdate          Operation = "update"
	OperationUpsert          Operation = "upsert"
	OperationDelete          Operation = "delete"
	OperationFindOne         Operation = "find_one"
	OperationFindAll         Operation = "find_all"
	OperationFindAllPaged    Operation = "find_all_paged"
	OperationExists          Operation = "exists"
	OperationCount           Operation = "count"
	OperationProjectAll      Operation = "project_all"
	OperationProjectAllPaged Operation = "project_all_paged"
)

// A behavior is any value implementing at least one of the hook interfaces below.
// Before-hooks may veto the operation by returning an error. After-hooks receive the outcome
// of the operation, opErr is nil on success.

type BeforeInserter[T any] interface {
	BeforeInsert(ctx context.Context, entity T) error
}

type AfterInserter[T any] interface {
	AfterInsert(ctx context.Context, entity T, opErr error) error
}

type BeforeUpdater[T any] interface {
	BeforeUpdate(ctx context.Context, entity T) error
}

type AfterUpdater[T any] interface {
	AfterUpdate(ctx context.Context, entity T, opErr error) error
}

type BeforeUpserter[T any] interface {
	BeforeUpsert(ctx context.Context, entity T) error
}

type AfterUpserter[T any] interface {
	AfterUpsert(ctx context.Context, entity T, opErr error) error
}

// BeforeDeleter may return ErrSoftDeleteRequested to have the entity updated instead of deleted.
type BeforeDeleter[T any] interface {
	BeforeDelete(ctx context.Context, entity T) error
}

type AfterDeleter[T any] interface {
	AfterDelete(ctx context.Context, entity T, opErr error) error
}

// BehaviorFactory creates a behavior for one resolution scope. options is the value given at registration.
type BehaviorFactory func(scope *Scope, options any) any

// BehaviorRegistration is one entry of the ordered behavior list of an entity type.
type BehaviorRegistration struct {
	Name    string
	Options any
	Factory BehaviorFactory
}

// ApplyOn selects the lifecycle points a validator runs on.
type ApplyOn uint8

const (
	ApplyOnInsert ApplyOn = 1 << iota
	ApplyOnUpdate
	ApplyOnUpsert
	ApplyOnDelete

	ApplyOnAll = ApplyOnInsert | ApplyOnUpdate | ApplyOnUpsert | ApplyOnDelete
)

// Has reports whether op is selected.
func (a ApplyOn) Has(op ApplyOn) bool {
	return a&op != 0
}

// Validator checks an entity and reports every failed rule. An empty result means valid.
type Validator[T any] interface {
	Validate(ctx context.Context, entity T) []ValidationFailure
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc[T any] func(ctx context.Context, entity T) []ValidationFailure

// Validate calls f.
func (f ValidatorFunc[T]) Validate(ctx context.Context, entity T) []ValidationFailure {
	return f(ctx, entity)
}

// ValidatorRegistration binds a validator to the lifecycle points it applies to.
type ValidatorRegistration[T any] struct {
	Validator Validator[T]
	ApplyOn   ApplyOn
}
