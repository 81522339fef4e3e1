package sqlengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
)

var ErrUnsupportedDialect = errors.New("unsupported sql dialect")

// Dialect selects the SQL flavor statements are rendered in.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

func (d Dialect) validate() error {
	switch d {
	case DialectPostgres, DialectSQLite:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDialect, string(d))
	}
}

func (d Dialect) builder() goqu.DialectWrapper {
	return goqu.Dialect(string(d))
}

func (d Dialect) quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// contains and startsWith are case-sensitive and need no LIKE escaping.

func (d Dialect) contains(col exp.IdentifierExpression, substr any) exp.Expression {
	if d == DialectSQLite {
		return goqu.L("instr(?, ?) > 0", col, substr)
	}

	return goqu.L("strpos(?, ?) > 0", col, substr)
}

func (d Dialect) startsWith(col exp.IdentifierExpression, prefix any) exp.Expression {
	if d == DialectSQLite {
		return goqu.L("substr(?, 1, length(?)) = ?", col, prefix, prefix)
	}

	return goqu.L("starts_with(?, ?)", col, prefix)
}
