package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine/internal/adapters"
)

var ErrSessionEnded = errors.New("transaction of the scope has already ended")

const (
	transactionLabel = "transaction"

	logMsgBeginFailed    = "sqlengine: beginning transaction failed"
	logMsgCommitFailed   = "sqlengine: committing transaction failed"
	logMsgRollbackFailed = "sqlengine: rolling back transaction failed"
	logActionCommit      = "commit"
	logActionRollback    = "rollback"
)

// Transactor binds one database transaction to each entitystore.Scope.
//
// Providers and outboxes scoped with WithSession run every statement of a scope in that
// transaction. It begins with the first statement and ends when the scope closes. It commits
// unless a statement failed, a write operation failed or Session.Fail was called, then it rolls back.
type Transactor struct {
	db adapters.TxBeginner
	mu sync.Mutex
	instrumentation
}

type sessionKey struct {
	transactor *Transactor
}

func newTransactor(db adapters.TxBeginner, options []Option) (*Transactor, error) {
	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &Transactor{db: db, instrumentation: newInstrumentation(transactionLabel, s)}, nil
}

// NewTransactorFromPGXPool creates a Transactor using a pgx Pool. Transactions always run on this pool,
// pass the primary when providers read from a replica.
func NewTransactorFromPGXPool(db *pgxpool.Pool, options ...Option) (*Transactor, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newTransactor(adapters.NewPGXAdapter(db), options)
}

// NewTransactorFromSQLDB creates a Transactor using a sql.DB.
func NewTransactorFromSQLDB(db *sql.DB, options ...Option) (*Transactor, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newTransactor(adapters.NewSQLAdapter(db), options)
}

// NewTransactorFromSQLX creates a Transactor using a sqlx.DB.
func NewTransactorFromSQLX(db *sqlx.DB, options ...Option) (*Transactor, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newTransactor(adapters.NewSQLXAdapter(db), options)
}

// Session returns the session of scope, creating it on first use.
// Closing the scope commits or rolls back its transaction.
func (t *Transactor) Session(scope *entitystore.Scope) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{transactor: t}
	if s, ok := scope.Value(key).(*Session); ok {
		return s
	}

	s := &Session{transactor: t}
	scope.Set(key, s)
	scope.OnClose(s.end)

	return s
}

// ScopedProvider returns a factory handing every scope a copy of provider bound to the scope's session.
func ScopedProvider[T any](transactor *Transactor, provider *Provider[T]) entitystore.ProviderFactory[T] {
	return func(scope *entitystore.Scope) (entitystore.Provider[T], error) {
		return provider.WithSession(transactor.Session(scope)), nil
	}
}

// ScopedOutbox returns a function handing every scope a copy of outbox bound to the scope's session.
// It fits behaviors.DomainEventOptions.PublisherFromScope.
func ScopedOutbox(transactor *Transactor, outbox *Outbox) func(scope *entitystore.Scope) entitystore.EventPublisher {
	return func(scope *entitystore.Scope) entitystore.EventPublisher {
		return outbox.WithSession(transactor.Session(scope))
	}
}

// Session is the transaction of one scope. It is safe for concurrent use, statements run one at a time.
type Session struct {
	transactor *Transactor

	// statement is held from the start of a statement until its rows are closed.
	statement sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	tx     adapters.TxAdapter
	failed bool
	ended  bool
}

// Fail marks the transaction for rollback.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed = true
}

// Failed reports whether the transaction will be rolled back.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.failed
}

// begin returns the transaction, starting it on first use. The caller holds statement.
// The transaction must outlive the operation that started it, so cancellation of ctx is dropped.
func (s *Session) begin(ctx context.Context) (adapters.TxAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}

	if s.tx != nil {
		return s.tx, nil
	}

	ctx = context.WithoutCancel(ctx)

	tx, err := s.transactor.db.Begin(ctx)
	if err != nil {
		s.transactor.logError(ctx, logMsgBeginFailed, err)
		return nil, err
	}

	s.ctx, s.tx = ctx, tx

	return tx, nil
}

// end commits or rolls back the transaction once the scope closes.
func (s *Session) end() error {
	s.statement.Lock()
	defer s.statement.Unlock()

	s.mu.Lock()
	ctx, tx, failed := s.ctx, s.tx, s.failed
	s.ended = true
	s.mu.Unlock()

	if tx == nil {
		return nil
	}

	if failed {
		if err := tx.Rollback(ctx); err != nil {
			s.transactor.logError(ctx, logMsgRollbackFailed, err)
			return mapDBError(err)
		}

		s.transactor.logOperation(ctx, logActionRollback)

		return nil
	}

	if err := tx.Commit(ctx); err != nil {
		s.transactor.logError(ctx, logMsgCommitFailed, err)
		return mapDBError(err)
	}

	s.transactor.logOperation(ctx, logActionCommit)

	return nil
}

// sessionAdapter runs statements in the transaction of a session.
// Failing statements mark the session failed, PostgreSQL refuses further statements in that transaction anyway.
type sessionAdapter struct {
	session *Session
}

func (a sessionAdapter) Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error) {
	s := a.session
	s.statement.Lock()

	tx, err := s.begin(ctx)
	if err == nil {
		var rows adapters.DBRows
		if rows, err = tx.Query(ctx, query, args...); err == nil {
			return &sessionRows{DBRows: rows, session: s}, nil
		}
	}

	s.Fail()
	s.statement.Unlock()

	return nil, err
}

func (a sessionAdapter) Exec(ctx context.Context, query string, args ...any) (adapters.DBResult, error) {
	s := a.session
	s.statement.Lock()
	defer s.statement.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		s.Fail()
		return nil, err
	}

	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		s.Fail()
		return nil, err
	}

	return result, nil
}

// sessionRows releases the statement lock of its session when closed.
type sessionRows struct {
	adapters.DBRows
	session *Session
	release sync.Once
}

func (r *sessionRows) Err() error {
	err := r.DBRows.Err()
	if err != nil {
		r.session.Fail()
	}

	return err
}

func (r *sessionRows) Close() error {
	err := r.DBRows.Close()
	r.release.Do(r.session.statement.Unlock)

	return err
}
