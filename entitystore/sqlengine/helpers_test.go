package sqlengine_test

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // driver registration

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func personTable() sqlengine.Table[*fixtures.Person] {
	return sqlengine.Table[*fixtures.Person]{
		Name: "people",
		New:  func() *fixtures.Person { return &fixtures.Person{} },
		Columns: []sqlengine.Column[*fixtures.Person]{
			sqlengine.NewColumn("id", "ID", "TEXT", func(p *fixtures.Person) *string { return &p.ID }),
			sqlengine.NewColumn("name", "Name", "TEXT NOT NULL", func(p *fixtures.Person) *string { return &p.Name }),
			sqlengine.NewColumn("age", "Age", "INTEGER NOT NULL", func(p *fixtures.Person) *int { return &p.Age }),
			sqlengine.NewColumn("email", "Email", "TEXT", func(p *fixtures.Person) **string { return &p.Email }),
			sqlengine.NewColumn("active", "Active", "BOOLEAN NOT NULL", func(p *fixtures.Person) *bool { return &p.Active }),
			sqlengine.NewColumn("version", "Version", "BIGINT NOT NULL", func(p *fixtures.Person) *int64 { return &p.Version }),
		},
		IDColumn:      "id",
		VersionColumn: "version",
	}
}

// openSQLite returns an in-memory database. One connection keeps every statement on the same database.
func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newProvider(t *testing.T, options ...sqlengine.Option) *sqlengine.Provider[*fixtures.Person] {
	t.Helper()

	return newProviderOn(t, openSQLite(t), personTable(), options...)
}

func newProviderOn(
	t *testing.T,
	db *sql.DB,
	table sqlengine.Table[*fixtures.Person],
	options ...sqlengine.Option,
) *sqlengine.Provider[*fixtures.Person] {
	t.Helper()

	options = append([]sqlengine.Option{sqlengine.WithDialect(sqlengine.DialectSQLite)}, options...)

	provider, err := sqlengine.NewProviderFromSQLDB(table, db, options...)
	require.NoError(t, err)
	require.NoError(t, provider.CreateTable(t.Context()))

	return provider
}

// population returns 25 people. Even numbers have an email address, every fifth person is inactive.
func population() []*fixtures.Person {
	people := fixtures.People(25)
	for i, p := range people {
		n := i + 1
		if n%2 == 0 {
			p.Email = fixtures.StringPtr(fmt.Sprintf("%s@example.com", p.ID))
		}

		p.Active = n%5 != 0
	}

	return people
}

func ids(people []*fixtures.Person) []string {
	result := make([]string, 0, len(people))
	for _, p := range people {
		result = append(result, p.ID)
	}

	return result
}
