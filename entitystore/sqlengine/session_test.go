package sqlengine_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/behaviors"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

type transactional struct {
	db         *sql.DB
	provider   *sqlengine.Provider[*fixtures.Person]
	outbox     *sqlengine.Outbox
	transactor *sqlengine.Transactor
	registry   *entitystore.Registry
}

// newTransactional wires a person provider and an outbox sharing the transaction of each scope.
// Without createOutbox the outbox table is missing and every Publish fails.
func newTransactional(t *testing.T, phase behaviors.PublishPhase, createOutbox bool) transactional {
	t.Helper()

	db := openSQLite(t)
	provider := newProviderOn(t, db, personTable())

	outbox, err := sqlengine.NewOutboxFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite), sqlengine.WithOutboxTable("outbox"))
	require.NoError(t, err)

	if createOutbox {
		require.NoError(t, outbox.CreateTable(t.Context()))
	}

	transactor, err := sqlengine.NewTransactorFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
	require.NoError(t, err)

	registry, err := entitystore.NewRegistry()
	require.NoError(t, err)

	entitystore.Configure(registry, func(c *entitystore.Configurator[*fixtures.Person]) {
		c.UseProvider(sqlengine.ScopedProvider(transactor, provider))
		behaviors.WithDomainEvents(c, behaviors.DomainEventOptions{
			PublisherFromScope: sqlengine.ScopedOutbox(transactor, outbox),
			Phase:              phase,
		})
	})

	return transactional{db: db, provider: provider, outbox: outbox, transactor: transactor, registry: registry}
}

func (tr transactional) resolve(t *testing.T, scope *entitystore.Scope) *entitystore.EntityContext[*fixtures.Person] {
	t.Helper()

	ec, err := entitystore.Resolve[*fixtures.Person](tr.registry, scope)
	require.NoError(t, err)

	return ec
}

// countRows must only run while no scope holds the single connection.
func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(t.Context(), `SELECT COUNT(*) FROM `+table).Scan(&n))

	return n
}

func renamed(id, name string) *fixtures.Person {
	p := fixtures.NewPerson(id, "Initial", 30)
	p.Rename(name, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return p
}

func Test_Session_CommitsWhenTheScopeCloses(t *testing.T) {
	// setup
	tr := newTransactional(t, behaviors.PublishBefore, true)
	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	// act
	_, err := ec.Insert(t.Context(), renamed("p1", "Anna"))
	require.NoError(t, err)
	require.NoError(t, scope.Close())

	// assert
	assert.Equal(t, 1, countRows(t, tr.db, "people"))
	assert.Equal(t, 1, countRows(t, tr.db, "outbox"))
}

func Test_Session_ProviderFailureLeavesNoOutboxRow(t *testing.T) {
	// setup
	tr := newTransactional(t, behaviors.PublishBefore, true)
	_, err := tr.provider.Insert(t.Context(), fixtures.NewPerson("p1", "Anna", 30))
	require.NoError(t, err)

	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	// act
	_, err = ec.Insert(t.Context(), renamed("p1", "Anne"))

	// assert
	require.ErrorIs(t, err, entitystore.ErrAlreadyExists)
	assert.True(t, tr.transactor.Session(scope).Failed())
	require.NoError(t, scope.Close())
	assert.Equal(t, 0, countRows(t, tr.db, "outbox"))
	assert.Equal(t, 1, countRows(t, tr.db, "people"))
}

func Test_Session_OutboxFailureRollsBackTheEntityChange(t *testing.T) {
	// setup
	tr := newTransactional(t, behaviors.PublishAfter, false)
	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	// act
	_, err := ec.Insert(t.Context(), renamed("p1", "Anna"))

	// assert
	require.Error(t, err)
	require.NoError(t, scope.Close())
	assert.Equal(t, 0, countRows(t, tr.db, "people"))
}

func Test_Session_FailedOperationRollsBackEarlierWritesOfTheScope(t *testing.T) {
	tr := newTransactional(t, behaviors.PublishAfter, true)
	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	_, err := ec.Insert(t.Context(), renamed("p1", "Anna"))
	require.NoError(t, err)

	stale := fixtures.NewPerson("p1", "Anne", 30)
	stale.Version = 7
	_, err = ec.Update(t.Context(), stale)
	require.ErrorIs(t, err, entitystore.ErrConcurrencyConflict)

	require.NoError(t, scope.Close())
	assert.Equal(t, 0, countRows(t, tr.db, "people"))
	assert.Equal(t, 0, countRows(t, tr.db, "outbox"))
}

func Test_Session_Fail(t *testing.T) {
	tr := newTransactional(t, behaviors.PublishAfter, true)
	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	_, err := ec.Insert(t.Context(), renamed("p1", "Anna"))
	require.NoError(t, err)

	tr.transactor.Session(scope).Fail()

	require.NoError(t, scope.Close())
	assert.Equal(t, 0, countRows(t, tr.db, "people"))
}

func Test_Session_IsSharedWithinAScope(t *testing.T) {
	tr := newTransactional(t, behaviors.PublishAfter, true)
	first, second := entitystore.NewScope(), entitystore.NewScope()
	t.Cleanup(func() {
		_ = first.Close()
		_ = second.Close()
	})

	assert.Same(t, tr.transactor.Session(first), tr.transactor.Session(first))
	assert.NotSame(t, tr.transactor.Session(first), tr.transactor.Session(second))
}

func Test_Session_ReadsItsOwnWrites(t *testing.T) {
	tr := newTransactional(t, behaviors.PublishAfter, true)
	scope := entitystore.NewScope()
	ec := tr.resolve(t, scope)

	for _, p := range population() {
		_, err := ec.Insert(t.Context(), p)
		require.NoError(t, err)
	}

	// the page and the count query take turns on the one transaction
	page, err := ec.Query().Take(5).ToPagedList(t.Context())
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, int64(25), page.TotalCount)

	require.NoError(t, scope.Close())
	assert.Equal(t, 25, countRows(t, tr.db, "people"))
}

func Test_Session_RejectsStatementsAfterTheScopeClosed(t *testing.T) {
	tr := newTransactional(t, behaviors.PublishAfter, true)
	scope := entitystore.NewScope()
	scoped := tr.provider.WithSession(tr.transactor.Session(scope))
	require.NoError(t, scope.Close())

	_, err := scoped.Count(t.Context(), nil)

	assert.ErrorIs(t, err, sqlengine.ErrSessionEnded)
}

func Test_NewTransactor_RejectsNilDatabase(t *testing.T) {
	_, err := sqlengine.NewTransactorFromSQLDB(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewTransactorFromSQLX(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewTransactorFromPGXPool(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)
}
