package entitystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/memengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func newPeopleContext(t *testing.T, people ...*fixtures.Person) (*entitystore.EntityContext[*fixtures.Person], *entitystore.Scope) {
	t.Helper()

	store, err := memengine.NewProvider[*fixtures.Person, string]()
	require.NoError(t, err)

	registry, err := entitystore.NewRegistry()
	require.NoError(t, err)

	entitystore.Configure(registry, func(c *entitystore.Configurator[*fixtures.Person]) {
		c.UseProvider(entitystore.SingletonProvider[*fixtures.Person](store))
	})

	scope := entitystore.NewScope()
	t.Cleanup(func() { _ = scope.Close() })

	ec, err := entitystore.Resolve[*fixtures.Person](registry, scope)
	require.NoError(t, err)

	for _, p := range people {
		_, err = ec.Insert(t.Context(), p)
		require.NoError(t, err)
	}

	return ec, scope
}

func requireUsagePanic(t *testing.T, target error, fn func()) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")

		err, ok := r.(error)
		require.True(t, ok, "expected an error value, got %T", r)

		var usage *entitystore.UsageError
		require.ErrorAs(t, err, &usage)
		assert.ErrorIs(t, err, target)
	}()

	fn()
}

func ids(people []*fixtures.Person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.ID)
	}

	return out
}
