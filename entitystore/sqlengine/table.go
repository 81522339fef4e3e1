package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidTable = errors.New("invalid table definition")

// IncludeLoader completes the related data named by an include path on loaded entities.
type IncludeLoader[T any] func(ctx context.Context, items []T) error

// Column maps one SQL column to a field of T.
type Column[T any] struct {
	// Name is the SQL column name.
	Name string

	// Member is the specification member stored in the column, empty when the column cannot be queried.
	Member string

	// SQLType is used for DDL only.
	SQLType string

	// Value returns the value to write.
	Value func(entity T) any

	// Target returns the scan destination for reads.
	Target func(entity T) any
}

// NewColumn creates a column for the field ptr points to.
func NewColumn[T, V any](name, member, sqlType string, ptr func(entity T) *V) Column[T] {
	return Column[T]{
		Name:    name,
		Member:  member,
		SQLType: sqlType,
		Value:   func(entity T) any { return *ptr(entity) },
		Target:  func(entity T) any { return ptr(entity) },
	}
}

// Table describes how entities of type T are stored.
type Table[T any] struct {
	Name    string
	New     func() T
	Columns []Column[T]

	// IDColumn names the primary key column.
	IDColumn string

	// VersionColumn names an optional int64 column used for optimistic concurrency.
	// Entities must implement entitystore.Versioned when it is set.
	VersionColumn string

	Includes map[string]IncludeLoader[T]
}

func (t Table[T]) validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: empty table name", ErrInvalidTable)
	case t.New == nil:
		return fmt.Errorf("%w: %s has no constructor", ErrInvalidTable, t.Name)
	case len(t.Columns) == 0:
		return fmt.Errorf("%w: %s has no columns", ErrInvalidTable, t.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" || c.Value == nil || c.Target == nil {
			return fmt.Errorf("%w: %s has an incomplete column %q", ErrInvalidTable, t.Name, c.Name)
		}

		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %s has column %q twice", ErrInvalidTable, t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	if _, ok := t.column(t.IDColumn); !ok {
		return fmt.Errorf("%w: %s has no id column %q", ErrInvalidTable, t.Name, t.IDColumn)
	}

	if t.VersionColumn != "" {
		if _, ok := t.column(t.VersionColumn); !ok {
			return fmt.Errorf("%w: %s has no version column %q", ErrInvalidTable, t.Name, t.VersionColumn)
		}
	}

	return nil
}

func (t Table[T]) column(name string) (Column[T], bool) {
	i := slices.IndexFunc(t.Columns, func(c Column[T]) bool { return c.Name == name })
	if i < 0 {
		return Column[T]{}, false
	}

	return t.Columns[i], true
}

func (t Table[T]) columnForMember(member string) (Column[T], bool) {
	i := slices.IndexFunc(t.Columns, func(c Column[T]) bool { return c.Member != "" && c.Member == member })
	if i < 0 {
		return Column[T]{}, false
	}

	return t.Columns[i], true
}

// CreateStatement renders a CREATE TABLE IF NOT EXISTS statement for the table.
func (t Table[T]) CreateStatement(dialect Dialect) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := dialect.quote(c.Name) + " " + c.SQLType
		if c.Name == t.IDColumn {
			def += " PRIMARY KEY"
		}

		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", dialect.quote(t.Name), strings.Join(defs, ",\n  "))
}
