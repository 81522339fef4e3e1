package sqlengine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func Test_Outbox_Publish(t *testing.T) {
	db := openSQLite(t)
	outbox, err := sqlengine.NewOutboxFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite), sqlengine.WithOutboxTable("outbox"))
	require.NoError(t, err)
	require.NoError(t, outbox.CreateTable(t.Context()))

	anna := fixtures.NewPerson("p1", "Anna", 30)
	anna.Rename("Anne", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	anna.Rename("Annie", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	ctx := entitystore.WithActor(t.Context(), "alice")
	require.NoError(t, outbox.Publish(ctx, anna.DomainEvents()...))

	rows, err := db.QueryContext(t.Context(), `SELECT event_type, aggregate_id, payload, metadata FROM outbox ORDER BY event_id`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var payloads []string
	for rows.Next() {
		var eventType, aggregateID, payload, metadata string
		require.NoError(t, rows.Scan(&eventType, &aggregateID, &payload, &metadata))

		assert.Equal(t, "PersonRenamed", eventType)
		assert.Equal(t, "p1", aggregateID)
		assert.JSONEq(t, `{"actor":"alice"}`, metadata)
		payloads = append(payloads, payload)
	}
	require.NoError(t, rows.Err())

	require.Len(t, payloads, 2)
	assert.JSONEq(t, `{"personId":"p1","newName":"Anne","at":"2026-03-01T12:00:00Z"}`, payloads[0])
	assert.JSONEq(t, `{"personId":"p1","newName":"Annie","at":"2026-03-02T12:00:00Z"}`, payloads[1])
}

func Test_Outbox_PublishWithoutEvents(t *testing.T) {
	outbox, err := sqlengine.NewOutboxFromSQLDB(openSQLite(t), sqlengine.WithDialect(sqlengine.DialectSQLite))
	require.NoError(t, err)

	// the table does not exist, nothing is written
	assert.NoError(t, outbox.Publish(t.Context()))
}

func Test_NewOutbox_RejectsInvalidInput(t *testing.T) {
	_, err := sqlengine.NewOutboxFromSQLDB(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewOutboxFromSQLDB(openSQLite(t), sqlengine.WithOutboxTable(""))
	assert.ErrorIs(t, err, sqlengine.ErrEmptyOutboxTableName)
}

func Test_Table_CreateStatement(t *testing.T) {
	statement := personTable().CreateStatement(sqlengine.DialectPostgres)

	assert.Contains(t, statement, `CREATE TABLE IF NOT EXISTS "people"`)
	assert.Contains(t, statement, `"id" TEXT PRIMARY KEY`)
	assert.Contains(t, statement, `"email" TEXT,`)
}
