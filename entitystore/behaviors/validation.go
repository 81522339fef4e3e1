package behaviors

import (
	"context"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// Validation runs the validators registered for an entity type and rejects the operation with one
// *entitystore.ValidationError holding the failures of all of them.
type Validation[T any] struct {
	validators []entitystore.ValidatorRegistration[T]
}

func NewValidation[T any](validators []entitystore.ValidatorRegistration[T]) *Validation[T] {
	return &Validation[T]{validators: validators}
}

func (v *Validation[T]) validate(ctx context.Context, point entitystore.ApplyOn, entity T) error {
	var failures []entitystore.ValidationFailure

	for _, registration := range v.validators {
		if !registration.ApplyOn.Has(point) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		failures = append(failures, registration.Validator.Validate(ctx, entity)...)
	}

	if len(failures) > 0 {
		return &entitystore.ValidationError{Failures: failures}
	}

	return nil
}

func (v *Validation[T]) BeforeInsert(ctx context.Context, entity T) error {
	return v.validate(ctx, entitystore.ApplyOnInsert, entity)
}

func (v *Validation[T]) BeforeUpdate(ctx context.Context, entity T) error {
	return v.validate(ctx, entitystore.ApplyOnUpdate, entity)
}

func (v *Validation[T]) BeforeUpsert(ctx context.Context, entity T) error {
	return v.validate(ctx, entitystore.ApplyOnUpsert, entity)
}

func (v *Validation[T]) BeforeDelete(ctx context.Context, entity T) error {
	return v.validate(ctx, entitystore.ApplyOnDelete, entity)
}
