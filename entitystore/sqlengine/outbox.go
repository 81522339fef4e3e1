package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine/internal/adapters"
)

const (
	defaultOutboxTable = "entity_outbox"

	outboxOperation     entitystore.Operation = "outbox_publish"
	metadataKeyActor                          = "actor"
	logActionOutboxSave                       = "outbox insert"
)

// Outbox implements entitystore.EventPublisher by writing domain events as StorableEvent rows.
// On its own every Publish is a separate statement. Events are stored atomically with the entity
// change they belong to only when the outbox and the provider share the session of a scope,
// see Transactor and ScopedOutbox.
type Outbox struct {
	db      adapters.DBAdapter
	table   string
	dialect Dialect
	session *Session
	instrumentation
}

var _ entitystore.EventPublisher = (*Outbox)(nil)

func newOutbox(db adapters.DBAdapter, options []Option) (*Outbox, error) {
	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &Outbox{
		db:              db,
		table:           s.outboxTable,
		dialect:         s.dialect,
		instrumentation: newInstrumentation(s.outboxTable, s),
	}, nil
}

// NewOutboxFromPGXPool creates an Outbox using a pgx Pool.
func NewOutboxFromPGXPool(db *pgxpool.Pool, options ...Option) (*Outbox, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newOutbox(adapters.NewPGXAdapter(db), options)
}

// NewOutboxFromSQLDB creates an Outbox using a sql.DB.
func NewOutboxFromSQLDB(db *sql.DB, options ...Option) (*Outbox, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newOutbox(adapters.NewSQLAdapter(db), options)
}

// NewOutboxFromSQLX creates an Outbox using a sqlx.DB.
func NewOutboxFromSQLX(db *sqlx.DB, options ...Option) (*Outbox, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newOutbox(adapters.NewSQLXAdapter(db), options)
}

// OutboxCreateStatement renders the DDL of an outbox table.
func OutboxCreateStatement(dialect Dialect, table string) string {
	jsonType, timeType := "JSONB", "TIMESTAMPTZ"
	if dialect == DialectSQLite {
		jsonType, timeType = "TEXT", "TIMESTAMP"
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "event_id" TEXT PRIMARY KEY,
  "event_type" TEXT NOT NULL,
  "aggregate_id" TEXT NOT NULL,
  "occurred_at" %s NOT NULL,
  "payload" %s NOT NULL,
  "metadata" %s NOT NULL
)`, dialect.quote(table), timeType, jsonType, jsonType)
}

// WithSession returns a copy of o writing in the transaction of session.
// A failed Publish of the copy marks the session failed.
func (o *Outbox) WithSession(session *Session) *Outbox {
	scoped := *o
	scoped.db = sessionAdapter{session: session}
	scoped.session = session

	return &scoped
}

// CreateTable creates the outbox table if it does not exist.
func (o *Outbox) CreateTable(ctx context.Context) error {
	if _, err := o.db.Exec(ctx, OutboxCreateStatement(o.dialect, o.table)); err != nil {
		return mapDBError(err)
	}

	return nil
}

// Publish stores all events with one multi-row insert. The actor of ctx is kept in the metadata.
func (o *Outbox) Publish(ctx context.Context, events ...entitystore.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	err := o.instrument(ctx, outboxOperation, func(ctx context.Context) error {
		metadata := map[string]string{metadataKeyActor: entitystore.ActorFrom(ctx)}

		rows := make([]any, 0, len(events))
		for _, event := range events {
			storable, err := entitystore.StorableEventFromDomainEvent(event, metadata)
			if err != nil {
				o.logError(ctx, logMsgBuildQueryFailed, err)
				return err
			}

			rows = append(rows, goqu.Record{
				"event_id":     storable.EventID.String(),
				"event_type":   storable.EventType,
				"aggregate_id": storable.AggregateID,
				"occurred_at":  storable.OccurredAt.UTC(),
				"payload":      string(storable.PayloadJSON),
				"metadata":     string(storable.MetadataJSON),
			})
		}

		ds := o.dialect.builder().Insert(o.table).Rows(rows...).Prepared(true)

		sqlQuery, args, err := ds.ToSQL()
		if err != nil {
			o.logError(ctx, logMsgBuildQueryFailed, err)
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		if _, err := o.db.Exec(ctx, sqlQuery, args...); err != nil {
			mapped := mapDBError(err)
			o.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
			o.recordErrorMetrics(ctx, outboxOperation, errorType(mapped))

			return mapped
		}

		o.logOperation(ctx, logActionOutboxSave, logAttrRowCount, len(events))

		return nil
	})
	if err != nil && o.session != nil {
		o.session.Fail()
	}

	return err
}
