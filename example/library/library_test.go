package library_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/config"
	"github.com/AntonStoeckl/dynamic-entitystore-go/example/library"
)

const (
	isbnA = "9780306406157"
	isbnB = "9783161484100"
	isbnC = "9780000000019"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type engineSetup func(t *testing.T, s *config.Settings)

func memoryEngine(_ *testing.T, s *config.Settings) {
	s.Engine = config.EngineMemory
}

func sqliteEngine(t *testing.T, s *config.Settings) {
	s.Engine = config.EngineSQLite
	s.SQLite.Path = filepath.Join(t.TempDir(), "library.db")
}

func engines() map[string]engineSetup {
	return map[string]engineSetup{
		config.EngineMemory: memoryEngine,
		config.EngineSQLite: sqliteEngine,
	}
}

func openApp(t *testing.T, setup func(s *config.Settings), opts ...library.OpenOption) *library.App {
	t.Helper()

	settings, err := config.Load("")
	require.NoError(t, err)

	if setup != nil {
		setup(&settings)
	}

	opts = append([]library.OpenOption{
		library.WithLibraryOptions(library.WithClock(func() time.Time { return fixedNow })),
	}, opts...)

	app, err := library.Open(t.Context(), settings, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	return app
}

func recordEventTypes(app *library.App) *[]string {
	var types []string
	app.Bus.SubscribeAll(func(_ context.Context, event entitystore.DomainEvent) error {
		types = append(types, event.EventType())
		return nil
	})

	return &types
}

func Test_Library_Lends_And_Returns_Book_Copies(t *testing.T) {
	for name, setup := range engines() {
		t.Run(name, func(t *testing.T) {
			app := openApp(t, func(s *config.Settings) { setup(t, s) })
			events := recordEventTypes(app)
			ctx := t.Context()
			lib := app.Library

			_, err := lib.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", isbnA)
			require.NoError(t, err)
			_, err = lib.AddBookCopy(ctx, "b02", "Emma", "Jane Austen", isbnB)
			require.NoError(t, err)
			_, err = lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
			require.NoError(t, err)

			require.NoError(t, lib.LendBookCopyToReader(ctx, "b01", "r01"))
			require.NoError(t, lib.LendBookCopyToReader(ctx, "b01", "r01"), "lending again to the same reader")

			lent, err := lib.BooksLentByReader(ctx, "r01")
			require.NoError(t, err)
			require.Len(t, lent, 1)
			assert.Equal(t, "b01", lent[0].ID)
			assert.Equal(t, "r01", *lent[0].LentTo)

			require.NoError(t, lib.ReturnBookCopyFromReader(ctx, "b01", "r01"))

			lent, err = lib.BooksLentByReader(ctx, "r01")
			require.NoError(t, err)
			assert.Empty(t, lent)

			assert.Equal(t, []string{
				library.BookCopyAddedToCirculationEventType,
				library.BookCopyAddedToCirculationEventType,
				library.ReaderRegisteredEventType,
				library.BookCopyLentToReaderEventType,
				library.BookCopyReturnedByReaderEventType,
			}, *events)
		})
	}
}

func Test_Library_Enforces_Lending_Rules(t *testing.T) {
	app := openApp(t, nil, library.WithLibraryOptions(library.WithMaxBooksPerReader(1)))
	ctx := t.Context()
	lib := app.Library

	for _, b := range []struct{ id, isbn string }{{"b01", isbnA}, {"b02", isbnB}, {"b03", isbnC}} {
		_, err := lib.AddBookCopy(ctx, b.id, "Title "+b.id, "Author", b.isbn)
		require.NoError(t, err)
	}

	_, err := lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
	require.NoError(t, err)
	_, err = lib.RegisterReader(ctx, "r02", "Bob", "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, lib.LendBookCopyToReader(ctx, "b01", "r01"))

	assert.ErrorIs(t, lib.LendBookCopyToReader(ctx, "b01", "r02"), library.ErrBookAlreadyLent)
	assert.ErrorIs(t, lib.LendBookCopyToReader(ctx, "b02", "r01"), library.ErrReaderHasTooManyBooks)
	assert.ErrorIs(t, lib.LendBookCopyToReader(ctx, "b99", "r01"), library.ErrBookNotInCirculation)
	assert.ErrorIs(t, lib.LendBookCopyToReader(ctx, "b02", "r99"), library.ErrReaderNotRegistered)
	assert.ErrorIs(t, lib.ReturnBookCopyFromReader(ctx, "b01", "r02"), library.ErrBookNotLentToReader)
	assert.ErrorIs(t, lib.RemoveBookCopy(ctx, "b01"), library.ErrBookAlreadyLent)

	require.NoError(t, lib.CancelReaderContract(ctx, "r02"))
	assert.ErrorIs(t, lib.LendBookCopyToReader(ctx, "b02", "r02"), library.ErrReaderNotRegistered)
}

func Test_Library_CancelReaderContract_Requires_Returned_Books(t *testing.T) {
	app := openApp(t, nil)
	events := recordEventTypes(app)
	ctx := t.Context()
	lib := app.Library

	_, err := lib.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", isbnA)
	require.NoError(t, err)
	_, err = lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
	require.NoError(t, err)
	require.NoError(t, lib.LendBookCopyToReader(ctx, "b01", "r01"))

	assert.ErrorIs(t, lib.CancelReaderContract(ctx, "r01"), library.ErrReaderHasLentBooks)

	require.NoError(t, lib.ReturnBookCopyFromReader(ctx, "b01", "r01"))
	require.NoError(t, lib.CancelReaderContract(ctx, "r01"))
	require.NoError(t, lib.CancelReaderContract(ctx, "r01"), "canceling twice")

	readers, err := lib.RegisteredReaders(ctx)
	require.NoError(t, err)
	assert.Empty(t, readers)

	assert.Equal(t, library.ReaderContractCanceledEventType, (*events)[len(*events)-1])
	assert.Len(t, *events, 5)
}

func Test_Library_Rejects_Invalid_Entities(t *testing.T) {
	app := openApp(t, nil)
	events := recordEventTypes(app)
	ctx := t.Context()

	_, err := app.Library.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", "9780306406158")
	assert.ErrorIs(t, err, entitystore.ErrValidationFailed)

	_, err = app.Library.RegisterReader(ctx, "r01", "Ann", "not-an-email")
	assert.ErrorIs(t, err, entitystore.ErrValidationFailed)

	assert.Empty(t, *events)
}

func Test_Library_BooksInCirculation_Pages_By_Title(t *testing.T) {
	for name, setup := range engines() {
		t.Run(name, func(t *testing.T) {
			app := openApp(t, func(s *config.Settings) { setup(t, s) })
			ctx := t.Context()
			lib := app.Library

			for _, b := range []struct{ id, title, isbn string }{
				{"b01", "Emma", isbnA},
				{"b02", "Dune", isbnB},
				{"b03", "Beloved", isbnC},
			} {
				_, err := lib.AddBookCopy(ctx, b.id, b.title, "Author", b.isbn)
				require.NoError(t, err)
			}

			_, err := lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
			require.NoError(t, err)
			require.NoError(t, lib.LendBookCopyToReader(ctx, "b02", "r01"))

			page, err := lib.BooksInCirculation(ctx, 1, 1)
			require.NoError(t, err)

			assert.Equal(t, int64(3), page.TotalCount)
			require.Len(t, page.Items, 1)
			assert.Equal(t, library.BookListing{BookID: "b02", Title: "Dune", Author: "Author", IsLent: true}, page.Items[0])
		})
	}
}

const bookFilters = `
filters:
  - name: removed
    expression: Deleted == true
  - name: by_author
    expression: Author == @0 && Deleted == false
    params: [Frank Herbert]
`

func Test_Library_Soft_Deletes_Removed_Copies(t *testing.T) {
	for name, setup := range engines() {
		t.Run(name, func(t *testing.T) {
			catalogPath := filepath.Join(t.TempDir(), "filters.yaml")
			require.NoError(t, os.WriteFile(catalogPath, []byte(bookFilters), 0o600))

			app := openApp(t, func(s *config.Settings) {
				setup(t, s)
				s.Behaviors.SoftDelete = true
				s.Catalog.Path = catalogPath
			})
			ctx := entitystore.WithActor(t.Context(), "librarian")
			lib := app.Library

			_, err := lib.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", isbnA)
			require.NoError(t, err)
			_, err = lib.AddBookCopy(ctx, "b02", "Children of Dune", "Frank Herbert", isbnB)
			require.NoError(t, err)

			require.NoError(t, lib.RemoveBookCopy(ctx, "b01"))
			assert.ErrorIs(t, lib.RemoveBookCopy(ctx, "b01"), library.ErrBookNotInCirculation)

			removed, err := lib.FindBooks(ctx, "removed")
			require.NoError(t, err)
			require.Len(t, removed, 1)
			assert.Equal(t, "b01", removed[0].ID)
			assert.True(t, removed[0].Audit.Deleted)
			assert.Equal(t, "librarian", removed[0].Audit.DeletedBy)
			assert.Equal(t, "removed from circulation", removed[0].Audit.DeletedReason)

			remaining, err := lib.FindBooks(ctx, "by_author")
			require.NoError(t, err)
			require.Len(t, remaining, 1)
			assert.Equal(t, "b02", remaining[0].ID)

			_, err = lib.FindBooks(ctx, "unknown")
			assert.Error(t, err)
		})
	}
}

func Test_Open_SQLite_Writes_Events_To_The_Outbox(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	app := openApp(t, func(s *config.Settings) {
		s.Engine = config.EngineSQLite
		s.SQLite.Path = path
	})
	ctx := t.Context()

	_, err := app.Library.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", isbnA)
	require.NoError(t, err)
	_, err = app.Library.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
	require.NoError(t, err)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.QueryContext(ctx, `SELECT "event_type", "aggregate_id" FROM "entity_outbox" ORDER BY "aggregate_id"`)
	require.NoError(t, err)
	defer rows.Close()

	var stored []string
	for rows.Next() {
		var eventType, aggregateID string
		require.NoError(t, rows.Scan(&eventType, &aggregateID))
		stored = append(stored, aggregateID+":"+eventType)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []string{
		"b01:" + library.BookCopyAddedToCirculationEventType,
		"r01:" + library.ReaderRegisteredEventType,
	}, stored)
}

func Test_Open_Caches_Reads_In_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	app := openApp(t, func(s *config.Settings) { s.Redis.Enabled = true }, library.WithRedisClient(client))
	ctx := t.Context()
	lib := app.Library

	_, err := lib.AddBookCopy(ctx, "b01", "Dune", "Frank Herbert", isbnA)
	require.NoError(t, err)
	_, err = lib.RegisterReader(ctx, "r01", "Ann", "ann@example.com")
	require.NoError(t, err)

	require.NoError(t, lib.LendBookCopyToReader(ctx, "b01", "r01"))

	lent, err := lib.BooksLentByReader(ctx, "r01")
	require.NoError(t, err)
	require.Len(t, lent, 1)

	require.NoError(t, lib.ReturnBookCopyFromReader(ctx, "b01", "r01"))

	lent, err = lib.BooksLentByReader(ctx, "r01")
	require.NoError(t, err)
	assert.Empty(t, lent, "writes invalidate cached reads")

	var bookKeys int
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "library:books:") {
			bookKeys++
		}
	}
	assert.Positive(t, bookKeys)
}

func Test_Open_Rejects_An_Unknown_Engine(t *testing.T) {
	settings, err := config.Load("")
	require.NoError(t, err)
	settings.Engine = "csv"

	_, err = library.Open(t.Context(), settings)
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func Test_New_Requires_Configured_Entity_Types(t *testing.T) {
	registry, err := entitystore.NewRegistry()
	require.NoError(t, err)

	_, err = library.New(registry)
	assert.ErrorIs(t, err, entitystore.ErrEntityTypeNotConfigured)
}
