package library_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

func Test_RetryOnConflict_Succeeds_Without_Retries(t *testing.T) {
	calls := 0

	err := library.RetryOnConflict(t.Context(), func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func Test_RetryOnConflict_Retries_Concurrency_Conflicts(t *testing.T) {
	calls := 0

	err := library.RetryOnConflict(t.Context(), func(context.Context) error {
		calls++
		if calls < 3 {
			return entitystore.ErrConcurrencyConflict
		}

		return nil
	}, library.WithBaseDelay(time.Millisecond), library.WithJitterFactor(0.1))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func Test_RetryOnConflict_Fails_Fast_On_Other_Errors(t *testing.T) {
	calls := 0
	failure := errors.New("disk full")

	err := library.RetryOnConflict(t.Context(), func(context.Context) error {
		calls++
		return failure
	})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, calls)
}

func Test_RetryOnConflict_Gives_Up_After_Max_Attempts(t *testing.T) {
	calls := 0

	err := library.RetryOnConflict(t.Context(), func(context.Context) error {
		calls++
		return entitystore.ErrConcurrencyConflict
	}, library.WithMaxAttempts(3), library.WithBaseDelay(0))

	assert.ErrorIs(t, err, entitystore.ErrConcurrencyConflict)
	assert.Equal(t, 3, calls)
}

func Test_RetryOnConflict_Stops_When_The_Context_Ends(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0

	err := library.RetryOnConflict(ctx, func(context.Context) error {
		calls++
		cancel()

		return entitystore.ErrConcurrencyConflict
	}, library.WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func Test_RetryOnConflict_Rejects_Invalid_Options(t *testing.T) {
	fn := func(context.Context) error { return nil }

	assert.ErrorIs(t, library.RetryOnConflict(t.Context(), fn, library.WithMaxAttempts(0)), library.ErrInvalidMaxAttempts)
	assert.ErrorIs(t, library.RetryOnConflict(t.Context(), fn, library.WithBaseDelay(-time.Second)), library.ErrNegativeBaseDelay)
	assert.ErrorIs(t, library.RetryOnConflict(t.Context(), fn, library.WithJitterFactor(1.5)), library.ErrInvalidJitterFactor)
}
