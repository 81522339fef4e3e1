package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine/internal/adapters"
)

const (
	logActionSelect = "select"
	logActionCount  = "count"
	logActionInsert = "insert"
	logActionUpdate = "update"
	logActionDelete = "delete"
)

// sqlBuilder is implemented by every goqu dataset.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

// Provider implements entitystore.Provider for the entities described by a Table.
type Provider[T any] struct {
	db      adapters.DBAdapter
	table   Table[T]
	dialect Dialect
	builder goqu.DialectWrapper
	session *Session
	instrumentation
}

var _ entitystore.Provider[any] = (*Provider[any])(nil)

func newProvider[T any](db adapters.DBAdapter, table Table[T], options []Option) (*Provider[T], error) {
	if err := table.validate(); err != nil {
		return nil, err
	}

	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &Provider[T]{
		db:              db,
		table:           table,
		dialect:         s.dialect,
		builder:         s.dialect.builder(),
		instrumentation: newInstrumentation(table.Name, s),
	}, nil
}

// NewProviderFromPGXPool creates a Provider using a pgx Pool.
func NewProviderFromPGXPool[T any](table Table[T], db *pgxpool.Pool, options ...Option) (*Provider[T], error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewPGXAdapter(db), table, options)
}

// NewProviderFromPGXPoolAndReplica creates a Provider that serves reads from replica when the
// context asks for eventual consistency, see entitystore.WithEventualConsistency.
func NewProviderFromPGXPoolAndReplica[T any](table Table[T], primary, replica *pgxpool.Pool, options ...Option) (*Provider[T], error) {
	if primary == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewPGXAdapterWithReplica(primary, replica), table, options)
}

// NewProviderFromSQLDB creates a Provider using a sql.DB.
func NewProviderFromSQLDB[T any](table Table[T], db *sql.DB, options ...Option) (*Provider[T], error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLAdapter(db), table, options)
}

// NewProviderFromSQLX creates a Provider using a sqlx.DB.
func NewProviderFromSQLX[T any](table Table[T], db *sqlx.DB, options ...Option) (*Provider[T], error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLXAdapter(db), table, options)
}

// WithSession returns a copy of p running its statements in the transaction of session.
// A failed write operation of the copy marks the session failed.
func (p *Provider[T]) WithSession(session *Session) *Provider[T] {
	scoped := *p
	scoped.db = sessionAdapter{session: session}
	scoped.session = session

	return &scoped
}

// CreateTable creates the table if it does not exist.
func (p *Provider[T]) CreateTable(ctx context.Context) error {
	_, err := p.db.Exec(ctx, p.table.CreateStatement(p.dialect))
	if err != nil {
		return mapDBError(err)
	}

	return nil
}

func (p *Provider[T]) Insert(ctx context.Context, entity T) (T, error) {
	err := p.write(ctx, entitystore.OperationInsert, func(ctx context.Context) error {
		restore := p.setVersion(entity, func(int64) int64 { return 1 })

		ds := p.builder.Insert(p.table.Name).Rows(p.record(entity, true)).Prepared(true)
		if _, err := p.exec(ctx, entitystore.OperationInsert, logActionInsert, ds); err != nil {
			restore()
			return err
		}

		return nil
	})

	return entity, err
}

// Update writes all mapped columns. With a version column the statement only matches the
// expected version, a miss is reported as ErrConcurrencyConflict or ErrNotFound.
func (p *Provider[T]) Update(ctx context.Context, entity T) (T, error) {
	err := p.write(ctx, entitystore.OperationUpdate, func(ctx context.Context) error {
		return p.update(ctx, entitystore.OperationUpdate, entity)
	})

	return entity, err
}

func (p *Provider[T]) update(ctx context.Context, op entitystore.Operation, entity T) error {
	id := p.id(entity)
	where := goqu.C(p.table.IDColumn).Eq(id)

	var previous int64
	restore := p.setVersion(entity, func(current int64) int64 {
		previous = current
		return current + 1
	})

	var condition goqu.Expression = where
	if p.versioned(entity) {
		condition = goqu.And(where, goqu.C(p.table.VersionColumn).Eq(previous))
	}

	ds := p.builder.Update(p.table.Name).Set(p.record(entity, false)).Where(condition).Prepared(true)

	rowsAffected, err := p.exec(ctx, op, logActionUpdate, ds)
	if err != nil {
		restore()
		return err
	}

	if rowsAffected > 0 {
		return nil
	}

	restore()

	exists, err := p.existsByID(ctx, id)
	if err != nil {
		return err
	}

	if exists {
		p.logOperation(ctx, logMsgConcurrencyConflict, logAttrEntityID, fmt.Sprint(id))
		p.recordConcurrencyConflict(ctx, op)

		return entitystore.ErrConcurrencyConflict
	}

	return entitystore.ErrNotFound
}

// Upsert checks for the id first and then inserts or updates.
func (p *Provider[T]) Upsert(ctx context.Context, entity T) (T, entitystore.UpsertAction, error) {
	var action entitystore.UpsertAction

	err := p.write(ctx, entitystore.OperationUpsert, func(ctx context.Context) error {
		exists, err := p.existsByID(ctx, p.id(entity))
		if err != nil {
			return err
		}

		if exists {
			action = entitystore.UpsertUpdated
			return p.update(ctx, entitystore.OperationUpsert, entity)
		}

		action = entitystore.UpsertInserted
		restore := p.setVersion(entity, func(int64) int64 { return 1 })

		ds := p.builder.Insert(p.table.Name).Rows(p.record(entity, true)).Prepared(true)
		if _, err := p.exec(ctx, entitystore.OperationUpsert, logActionInsert, ds); err != nil {
			restore()
			return err
		}

		return nil
	})
	if err != nil {
		return entity, 0, err
	}

	return entity, action, nil
}

// Delete removes the row with the id of entity.
func (p *Provider[T]) Delete(ctx context.Context, entity T) error {
	return p.write(ctx, entitystore.OperationDelete, func(ctx context.Context) error {
		ds := p.builder.Delete(p.table.Name).Where(goqu.C(p.table.IDColumn).Eq(p.id(entity))).Prepared(true)

		rowsAffected, err := p.exec(ctx, entitystore.OperationDelete, logActionDelete, ds)
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return entitystore.ErrNotFound
		}

		return nil
	})
}

// write instruments a write operation and fails the session of p when it fails.
func (p *Provider[T]) write(ctx context.Context, op entitystore.Operation, fn func(ctx context.Context) error) error {
	err := p.instrument(ctx, op, fn)
	if err != nil && p.session != nil {
		p.session.Fail()
	}

	return err
}

func (p *Provider[T]) FindOne(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) (T, error) {
	var found T

	err := p.instrument(ctx, entitystore.OperationFindOne, func(ctx context.Context) error {
		items, err := p.selectEntities(ctx, entitystore.OperationFindOne, specs, options.WithTake(1), p.table.Columns)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			return entitystore.ErrNotFound
		}

		found = items[0]

		return nil
	})

	return found, err
}

func (p *Provider[T]) FindAll(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, error) {
	var items []T

	err := p.instrument(ctx, entitystore.OperationFindAll, func(ctx context.Context) error {
		var err error
		items, err = p.selectEntities(ctx, entitystore.OperationFindAll, specs, options, p.table.Columns)
		return err
	})

	return items, err
}

// FindAllPaged returns one page and the number of all matches, see selectPage.
func (p *Provider[T]) FindAllPaged(ctx context.Context, specs []entitystore.Specification[T], options entitystore.FindOptions[T]) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	err := p.instrument(ctx, entitystore.OperationFindAllPaged, func(ctx context.Context) error {
		var err error
		items, total, err = p.selectPage(ctx, entitystore.OperationFindAllPaged, specs, options, p.table.Columns)
		return err
	})

	return items, total, err
}

func (p *Provider[T]) Exists(ctx context.Context, specs []entitystore.Specification[T]) (bool, error) {
	var exists bool

	err := p.instrument(ctx, entitystore.OperationExists, func(ctx context.Context) error {
		count, err := p.count(ctx, entitystore.OperationExists, specs)
		exists = count > 0
		return err
	})

	return exists, err
}

func (p *Provider[T]) Count(ctx context.Context, specs []entitystore.Specification[T]) (int64, error) {
	var count int64

	err := p.instrument(ctx, entitystore.OperationCount, func(ctx context.Context) error {
		var err error
		count, err = p.count(ctx, entitystore.OperationCount, specs)
		return err
	})

	return count, err
}

// ProjectAll loads only the columns backing fields, plus the id column.
func (p *Provider[T]) ProjectAll(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, error) {
	var items []T

	err := p.instrument(ctx, entitystore.OperationProjectAll, func(ctx context.Context) error {
		columns, err := p.projectedColumns(fields)
		if err != nil {
			return err
		}

		items, err = p.selectEntities(ctx, entitystore.OperationProjectAll, specs, options, columns)

		return err
	})

	return items, err
}

func (p *Provider[T]) ProjectAllPaged(ctx context.Context, specs []entitystore.Specification[T], fields []string, options entitystore.FindOptions[T]) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	err := p.instrument(ctx, entitystore.OperationProjectAllPaged, func(ctx context.Context) error {
		columns, err := p.projectedColumns(fields)
		if err != nil {
			return err
		}

		items, total, err = p.selectPage(ctx, entitystore.OperationProjectAllPaged, specs, options, columns)

		return err
	})

	return items, total, err
}

func (p *Provider[T]) projectedColumns(fields []string) ([]Column[T], error) {
	id, _ := p.table.column(p.table.IDColumn)
	columns := []Column[T]{id}

	for _, field := range fields {
		column, ok := p.table.columnForMember(field)
		if !ok {
			return nil, &entitystore.TranslationError{Member: field, Target: "table " + p.table.Name}
		}

		if column.Name != id.Name {
			columns = append(columns, column)
		}
	}

	return columns, nil
}

// selectPage runs the page query and the count query concurrently. Within a session they take turns.
func (p *Provider[T]) selectPage(
	ctx context.Context,
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	options entitystore.FindOptions[T],
	columns []Column[T],
) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		items, err = p.selectEntities(gctx, op, specs, options, columns)
		return err
	})

	g.Go(func() error {
		var err error
		total, err = p.count(gctx, op, specs)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (p *Provider[T]) selectEntities(
	ctx context.Context,
	op entitystore.Operation,
	specs []entitystore.Specification[T],
	options entitystore.FindOptions[T],
	columns []Column[T],
) ([]T, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	loaders, err := p.includeLoaders(options.Includes)
	if err != nil {
		return nil, err
	}

	where, err := p.where(specs)
	if err != nil {
		return nil, err
	}

	names := make([]any, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}

	ds := p.builder.From(p.table.Name).Select(names...).Prepared(true)
	if where != nil {
		ds = ds.Where(where)
	}

	ds, err = p.applyOptions(ds, options)
	if err != nil {
		return nil, err
	}

	items, err := p.scanEntities(ctx, op, ds, columns)
	if err != nil {
		return nil, err
	}

	entitystore.RecordValue(ctx, p.metricsCollector, metricRowsReturned, float64(len(items)), p.labels(op, entitystore.StatusSuccess))

	// loaders may run statements of their own, the rows are closed by now
	for _, load := range loaders {
		if err := load(ctx, items); err != nil {
			return nil, err
		}
	}

	return items, nil
}

func (p *Provider[T]) scanEntities(ctx context.Context, op entitystore.Operation, ds sqlBuilder, columns []Column[T]) ([]T, error) {
	rows, err := p.query(ctx, op, logActionSelect, ds)
	if err != nil {
		return nil, err
	}
	defer p.closeRows(ctx, rows)

	items := make([]T, 0)
	for rows.Next() {
		entity := p.table.New()

		dest := make([]any, 0, len(columns))
		for _, c := range columns {
			dest = append(dest, c.Target(entity))
		}

		if err := rows.Scan(dest...); err != nil {
			p.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(ErrScanningRowFailed, err)
		}

		items = append(items, entity)
	}

	if err := rows.Err(); err != nil {
		p.logError(ctx, logMsgDBQueryFailed, err)
		return nil, mapDBError(err)
	}

	return items, nil
}

func (p *Provider[T]) includeLoaders(paths []string) ([]IncludeLoader[T], error) {
	loaders := make([]IncludeLoader[T], 0, len(paths))

	for _, path := range paths {
		loader, ok := p.table.Includes[path]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInclude, path)
		}

		loaders = append(loaders, loader)
	}

	return loaders, nil
}

func (p *Provider[T]) count(ctx context.Context, op entitystore.Operation, specs []entitystore.Specification[T]) (int64, error) {
	where, err := p.where(specs)
	if err != nil {
		return 0, err
	}

	ds := p.builder.From(p.table.Name).Select(goqu.COUNT(goqu.Star())).Prepared(true)
	if where != nil {
		ds = ds.Where(where)
	}

	return p.scanCount(ctx, op, ds)
}

func (p *Provider[T]) existsByID(ctx context.Context, id any) (bool, error) {
	ds := p.builder.From(p.table.Name).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C(p.table.IDColumn).Eq(id)).
		Prepared(true)

	count, err := p.scanCount(ctx, entitystore.OperationExists, ds)

	return count > 0, err
}

func (p *Provider[T]) scanCount(ctx context.Context, op entitystore.Operation, ds sqlBuilder) (int64, error) {
	rows, err := p.query(ctx, op, logActionCount, ds)
	if err != nil {
		return 0, err
	}
	defer p.closeRows(ctx, rows)

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			p.logError(ctx, logMsgScanRowFailed, err)
			return 0, errors.Join(ErrScanningRowFailed, err)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, mapDBError(err)
	}

	return count, nil
}

func (p *Provider[T]) query(ctx context.Context, op entitystore.Operation, action string, ds sqlBuilder) (adapters.DBRows, error) {
	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		p.logError(ctx, logMsgBuildQueryFailed, err)
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	rows, err := p.db.Query(ctx, sqlQuery, args...)
	duration := time.Since(start)
	p.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		p.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		p.recordErrorMetrics(ctx, op, errorType(err))

		return nil, mapDBError(err)
	}

	entitystore.RecordDuration(ctx, p.metricsCollector, metricStatementDuration, duration, p.labels(op, entitystore.StatusSuccess))

	return rows, nil
}

func (p *Provider[T]) exec(ctx context.Context, op entitystore.Operation, action string, ds sqlBuilder) (int64, error) {
	sqlQuery, args, err := ds.ToSQL()
	if err != nil {
		p.logError(ctx, logMsgBuildQueryFailed, err)
		return 0, errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	result, err := p.db.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	p.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		mapped := mapDBError(err)
		p.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		p.recordErrorMetrics(ctx, op, errorType(mapped))

		return 0, mapped
	}

	entitystore.RecordDuration(ctx, p.metricsCollector, metricStatementDuration, duration, p.labels(op, entitystore.StatusSuccess))

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, mapDBError(err)
	}

	p.logOperation(ctx, action, logAttrRowCount, rowsAffected, logAttrDurationMS, entitystore.ToMilliseconds(duration))

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (p *Provider[T]) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		p.logWarn(ctx, logMsgCloseRowsFailed, err)
	}
}

func (p *Provider[T]) id(entity T) any {
	column, _ := p.table.column(p.table.IDColumn)
	return sqlValue(column.Value(entity))
}

// record returns the column values of entity, the id column only when withID is set.
func (p *Provider[T]) record(entity T, withID bool) goqu.Record {
	record := make(goqu.Record, len(p.table.Columns))

	for _, c := range p.table.Columns {
		if c.Name == p.table.IDColumn && !withID {
			continue
		}

		record[c.Name] = sqlValue(c.Value(entity))
	}

	return record
}

func (p *Provider[T]) versioned(entity T) bool {
	if p.table.VersionColumn == "" {
		return false
	}

	_, ok := any(entity).(entitystore.Versioned)

	return ok
}

// setVersion moves the version of versioned entities and returns a function restoring the old one.
func (p *Provider[T]) setVersion(entity T, next func(current int64) int64) (restore func()) {
	if !p.versioned(entity) {
		return func() {}
	}

	v := any(entity).(entitystore.Versioned)
	old := v.EntityVersion()
	v.SetEntityVersion(next(old))

	return func() { v.SetEntityVersion(old) }
}
