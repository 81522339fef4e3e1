package rediscache_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/memengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/rediscache"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/spies"
)

// countingProvider counts the reads reaching the wrapped provider.
type countingProvider struct {
	entitystore.Provider[*fixtures.Person]
	reads int
}

func (c *countingProvider) FindAll(ctx context.Context, specs []entitystore.Specification[*fixtures.Person], options entitystore.FindOptions[*fixtures.Person]) ([]*fixtures.Person, error) {
	c.reads++
	return c.Provider.FindAll(ctx, specs, options)
}

func (c *countingProvider) FindOne(ctx context.Context, specs []entitystore.Specification[*fixtures.Person], options entitystore.FindOptions[*fixtures.Person]) (*fixtures.Person, error) {
	c.reads++
	return c.Provider.FindOne(ctx, specs, options)
}

func (c *countingProvider) FindAllPaged(ctx context.Context, specs []entitystore.Specification[*fixtures.Person], options entitystore.FindOptions[*fixtures.Person]) ([]*fixtures.Person, int64, error) {
	c.reads++
	return c.Provider.FindAllPaged(ctx, specs, options)
}

func (c *countingProvider) Count(ctx context.Context, specs []entitystore.Specification[*fixtures.Person]) (int64, error) {
	c.reads++
	return c.Provider.Count(ctx, specs)
}

func (c *countingProvider) Exists(ctx context.Context, specs []entitystore.Specification[*fixtures.Person]) (bool, error) {
	c.reads++
	return c.Provider.Exists(ctx, specs)
}

type testSetup struct {
	server *miniredis.Miniredis
	inner  *countingProvider
	cache  *rediscache.Provider[*fixtures.Person]
}

func setup(t *testing.T, opts ...rediscache.Option) testSetup {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store, err := memengine.NewProvider[*fixtures.Person, string]()
	require.NoError(t, err)

	for _, p := range fixtures.People(25) {
		_, err = store.Insert(t.Context(), p)
		require.NoError(t, err)
	}

	inner := &countingProvider{Provider: store}
	cache, err := rediscache.New[*fixtures.Person](inner, client, append([]rediscache.Option{rediscache.WithPrefix("people")}, opts...)...)
	require.NoError(t, err)

	return testSetup{server: server, inner: inner, cache: cache}
}

func adults() []entitystore.Specification[*fixtures.Person] {
	return []entitystore.Specification[*fixtures.Person]{fixtures.PersonAge.Gte(18)}
}

func byAge() entitystore.FindOptions[*fixtures.Person] {
	return entitystore.FindOptions[*fixtures.Person]{}.OrderBy(fixtures.PersonAge)
}

func Test_New_RejectsInvalidInput(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	store, err := memengine.NewProvider[*fixtures.Person, string]()
	require.NoError(t, err)

	_, err = rediscache.New[*fixtures.Person](nil, client)
	assert.ErrorIs(t, err, rediscache.ErrNilProvider)

	_, err = rediscache.New[*fixtures.Person](store, nil)
	assert.ErrorIs(t, err, rediscache.ErrNilClient)

	_, err = rediscache.New[*fixtures.Person](store, client, rediscache.WithTTL(0))
	assert.ErrorIs(t, err, rediscache.ErrInvalidTTL)

	_, err = rediscache.New[*fixtures.Person](store, client, rediscache.WithPrefix(""))
	assert.ErrorIs(t, err, rediscache.ErrEmptyPrefix)
}

func Test_Provider_ServesRepeatedReadsFromRedis(t *testing.T) {
	metrics := spies.NewMetricsCollectorSpy()
	s := setup(t, rediscache.WithMetrics(metrics))

	first, err := s.cache.FindAll(t.Context(), adults(), byAge())
	require.NoError(t, err)

	second, err := s.cache.FindAll(t.Context(), adults(), byAge())
	require.NoError(t, err)

	assert.Equal(t, 1, s.inner.reads)
	assert.Equal(t, []string{"p18", "p19", "p20", "p21", "p22", "p23", "p24", "p25"}, ids(second))
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, "Person 18", second[0].Name)
	assert.True(t, metrics.HasCounterRecord("rediscache_misses_total", map[string]string{"operation": "find_all", "prefix": "people"}))
	assert.True(t, metrics.HasCounterRecord("rediscache_hits_total", map[string]string{"operation": "find_all"}))
}

func Test_Provider_KeysDependOnSpecificationsAndOptions(t *testing.T) {
	s := setup(t)

	_, err := s.cache.FindAll(t.Context(), adults(), byAge())
	require.NoError(t, err)
	_, err = s.cache.FindAll(t.Context(), adults(), byAge().WithTake(2))
	require.NoError(t, err)
	_, err = s.cache.FindAll(t.Context(), []entitystore.Specification[*fixtures.Person]{fixtures.PersonAge.Gte(19)}, byAge())
	require.NoError(t, err)

	assert.Equal(t, 3, s.inner.reads)
}

func Test_Provider_MutationsInvalidateCachedReads(t *testing.T) {
	s := setup(t)

	count, err := s.cache.Count(t.Context(), adults())
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)

	_, err = s.cache.Insert(t.Context(), fixtures.NewPerson("p26", "Person 26", 26))
	require.NoError(t, err)

	count, err = s.cache.Count(t.Context(), adults())
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)
	assert.Equal(t, 2, s.inner.reads)
	assert.Equal(t, "1", mustGet(t, s.server, "people:gen"))
}

func Test_Provider_FailedMutationsKeepTheCache(t *testing.T) {
	s := setup(t)

	_, err := s.cache.Insert(t.Context(), fixtures.NewPerson("p01", "Duplicate", 1))
	require.ErrorIs(t, err, entitystore.ErrAlreadyExists)

	assert.False(t, s.server.Exists("people:gen"))
}

func Test_Provider_CachedReadsExpire(t *testing.T) {
	s := setup(t, rediscache.WithTTL(time.Minute))

	_, _, err := s.cache.FindAllPaged(t.Context(), adults(), byAge().WithTake(3))
	require.NoError(t, err)

	s.server.FastForward(2 * time.Minute)

	items, total, err := s.cache.FindAllPaged(t.Context(), adults(), byAge().WithTake(3))
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	assert.Len(t, items, 3)
	assert.Equal(t, 2, s.inner.reads)
}

func Test_Provider_DoesNotCacheMisses(t *testing.T) {
	s := setup(t)
	nobody := []entitystore.Specification[*fixtures.Person]{fixtures.PersonAge.Gt(100)}

	_, err := s.cache.FindOne(t.Context(), nobody, byAge())
	require.ErrorIs(t, err, entitystore.ErrNotFound)
	_, err = s.cache.FindOne(t.Context(), nobody, byAge())
	require.ErrorIs(t, err, entitystore.ErrNotFound)

	assert.Equal(t, 2, s.inner.reads)

	exists, err := s.cache.Exists(t.Context(), nobody)
	require.NoError(t, err)
	assert.False(t, exists)
}

func Test_Provider_FallsBackWhenRedisFails(t *testing.T) {
	logger, logSpy := spies.NewLogger()
	s := setup(t, rediscache.WithLogger(logger))
	s.server.Close()

	items, err := s.cache.FindAll(t.Context(), adults(), byAge())

	require.NoError(t, err)
	assert.Len(t, items, 8)
	assert.True(t, logSpy.HasLog(slog.LevelWarn, "rediscache: redis failed").WithAttributeValue("operation", "find_all").Assert())
}

func mustGet(t *testing.T, server *miniredis.Miniredis, key string) string {
	t.Helper()

	value, err := server.Get(key)
	require.NoError(t, err)

	return value
}

func ids(people []*fixtures.Person) []string {
	result := make([]string, 0, len(people))
	for _, p := range people {
		result = append(result, p.ID)
	}

	return result
}
