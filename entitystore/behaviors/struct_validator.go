package behaviors

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// StructValidator validates entities against their `validate` struct tags.
type StructValidator[T any] struct {
	validate *validator.Validate
}

// StructValidatorOption defines a functional option for configuring a StructValidator.
type StructValidatorOption func(v *validator.Validate) error

// WithCustomRule registers an additional validation tag.
func WithCustomRule(tag string, fn validator.Func) StructValidatorOption {
	return func(v *validator.Validate) error {
		return v.RegisterValidation(tag, fn)
	}
}

func NewStructValidator[T any](options ...StructValidatorOption) (*StructValidator[T], error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	for _, option := range options {
		if err := option(v); err != nil {
			return nil, err
		}
	}

	return &StructValidator[T]{validate: v}, nil
}

// Validate reports one failure per violated tag. Property is the field path below the entity.
func (s *StructValidator[T]) Validate(ctx context.Context, entity T) []entitystore.ValidationFailure {
	err := s.validate.StructCtx(ctx, entity)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []entitystore.ValidationFailure{{Message: err.Error()}}
	}

	failures := make([]entitystore.ValidationFailure, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		failures = append(failures, entitystore.ValidationFailure{
			Property:       propertyPath(fe),
			Message:        failureMessage(fe),
			AttemptedValue: fe.Value(),
		})
	}

	return failures
}

// propertyPath strips the struct name from the namespace, "Person.Address.City" becomes "Address.City".
func propertyPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	for i := range len(ns) {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}

	return ns
}

func failureMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag())
	}
}
