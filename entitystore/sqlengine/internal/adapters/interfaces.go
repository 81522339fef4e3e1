package adapters

import "context"

// DBAdapter runs statements against one database handle.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
}

// DBRows iterates query results.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult reports the outcome of a statement.
type DBResult interface {
	RowsAffected() (int64, error)
}

// TxBeginner is a DBAdapter able to start transactions on its primary database.
type TxBeginner interface {
	DBAdapter
	Begin(ctx context.Context) (TxAdapter, error)
}

// TxAdapter runs statements inside one transaction.
type TxAdapter interface {
	DBAdapter
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
