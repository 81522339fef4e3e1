package behaviors_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/memengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

type personContext = entitystore.EntityContext[*fixtures.Person]

func newContext(
	t *testing.T,
	configure func(c *entitystore.Configurator[*fixtures.Person]),
) (*personContext, *memengine.Provider[*fixtures.Person, string]) {
	t.Helper()

	store, err := memengine.NewProvider[*fixtures.Person, string]()
	require.NoError(t, err)

	registry, err := entitystore.NewRegistry()
	require.NoError(t, err)

	entitystore.Configure(registry, func(c *entitystore.Configurator[*fixtures.Person]) {
		c.UseProvider(entitystore.SingletonProvider[*fixtures.Person](store))
		configure(c)
	})

	scope := entitystore.NewScope()
	t.Cleanup(func() { _ = scope.Close() })

	ec, err := entitystore.Resolve[*fixtures.Person](registry, scope)
	require.NoError(t, err)

	return ec, store
}

// steppingClock returns start on the first call and advances by step on every further call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	next := start

	return func() time.Time {
		now := next
		next = next.Add(step)

		return now
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
