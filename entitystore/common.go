package entitystore

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("entity not found")
var ErrConflict = errors.New("entity conflict")
var ErrAlreadyExists = fmt.Errorf("%w: entity already exists", ErrConflict)
var ErrConcurrencyConflict = fmt.Errorf("%w: concurrency error, no rows were affected", ErrConflict)
var ErrUnauthorized = errors.New("operation not authorized")
var ErrValidationFailed = errors.New("entity validation failed")
var ErrStorageFailed = errors.New("storage operation failed")
var ErrUnmappedMember = errors.New("member has no mapping")
var ErrInvalidExpression = errors.New("invalid specification expression")
var ErrInvalidFindOptions = errors.New("invalid find options")
var ErrEntityTypeNotConfigured = errors.New("entity type is not configured")
var ErrProviderNotConfigured = errors.New("no provider configured for entity type")

// ErrSoftDeleteRequested is returned by a before-delete hook to make the pipeline persist the entity
// with Update instead of deleting it. Callers never see it.
var ErrSoftDeleteRequested = errors.New("soft delete requested")

// Usage faults, raised as panics wrapped in a *UsageError.
var (
	ErrScopeDisposed        = errors.New("entity context used after its scope was disposed")
	ErrBehaviorCapability   = errors.New("behavior implements no lifecycle hook")
	ErrConcurrentContextUse = errors.New("entity context used by concurrent operations")
)

// UsageError signals a programming mistake. It is panicked, never returned.
type UsageError struct {
	Err    error
	Detail string
}

func (e *UsageError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}

	return e.Err.Error() + ": " + e.Detail
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func panicUsage(err error, detail string) {
	panic(&UsageError{Err: err, Detail: detail})
}

// ValidationFailure describes one failed validation rule.
type ValidationFailure struct {
	Property       string
	Message        string
	AttemptedValue any
}

// ValidationError aggregates all failures of one validation run.
type ValidationError struct {
	Failures []ValidationFailure
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 0 {
		return ErrValidationFailed.Error()
	}

	msg := ErrValidationFailed.Error() + ":"
	for i, f := range e.Failures {
		if i > 0 {
			msg += ";"
		}

		if f.Property != "" {
			msg += " " + f.Property + ":"
		}

		msg += " " + f.Message
	}

	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Messages returns the failure messages in order.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message)
	}

	return msgs
}

// TranslationError reports a specification member that the mapping does not cover.
type TranslationError struct {
	Member string
	Target string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s: %q has no counterpart on %s", ErrUnmappedMember.Error(), e.Member, e.Target)
}

func (e *TranslationError) Unwrap() error {
	return ErrUnmappedMember
}

// Errors flattens an error tree built with errors.Join into its leaf errors.
// A nil error yields nil.
func Errors(err error) []error {
	if err == nil {
		return nil
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}

	var all []error
	for _, e := range joined.Unwrap() {
		all = append(all, Errors(e)...)
	}

	return all
}
