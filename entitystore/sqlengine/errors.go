package sqlengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrNilDatabaseConnection = errors.New("database connection must not be nil")
var ErrUnknownInclude = errors.New("include path has no loader")
var ErrBuildingQueryFailed = errors.New("building sql statement failed")
var ErrScanningRowFailed = errors.New("scanning database row failed")

const pgUniqueViolation = "23505"

// isUniqueViolation recognizes duplicate key errors of pgx, lib/pq and SQLite.
func isUniqueViolation(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}

// mapDBError classifies a driver error. The driver error stays in the chain.
func mapDBError(err error) error {
	if isUniqueViolation(err) {
		return errors.Join(entitystore.ErrAlreadyExists, err)
	}

	return errors.Join(entitystore.ErrStorageFailed, err)
}
