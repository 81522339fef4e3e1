package library

import (
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/mongoengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
)

const (
	booksTable        = "books"
	readersTable      = "readers"
	booksCollection   = "books"
	readersCollection = "readers"
)

// BooksTable maps Book to the books table.
func BooksTable() sqlengine.Table[*Book] {
	return sqlengine.Table[*Book]{
		Name: booksTable,
		New:  func() *Book { return &Book{} },
		Columns: append([]sqlengine.Column[*Book]{
			sqlengine.NewColumn("id", "ID", "TEXT", func(b *Book) *string { return &b.ID }),
			sqlengine.NewColumn("title", "Title", "TEXT NOT NULL", func(b *Book) *string { return &b.Title }),
			sqlengine.NewColumn("author", "Author", "TEXT NOT NULL", func(b *Book) *string { return &b.Author }),
			sqlengine.NewColumn("isbn", "ISBN", "TEXT NOT NULL", func(b *Book) *string { return &b.ISBN }),
			sqlengine.NewColumn("lent_to", "LentTo", "TEXT", func(b *Book) **string { return &b.LentTo }),
			sqlengine.NewColumn("version", "Version", "BIGINT NOT NULL", func(b *Book) *int64 { return &b.Version }),
		}, auditColumns(func(b *Book) *entitystore.AuditState { return &b.Audit })...),
		IDColumn:      "id",
		VersionColumn: "version",
	}
}

// ReadersTable maps Reader to the readers table.
func ReadersTable() sqlengine.Table[*Reader] {
	return sqlengine.Table[*Reader]{
		Name: readersTable,
		New:  func() *Reader { return &Reader{} },
		Columns: append([]sqlengine.Column[*Reader]{
			sqlengine.NewColumn("id", "ID", "TEXT", func(r *Reader) *string { return &r.ID }),
			sqlengine.NewColumn("name", "Name", "TEXT NOT NULL", func(r *Reader) *string { return &r.Name }),
			sqlengine.NewColumn("email", "Email", "TEXT NOT NULL", func(r *Reader) *string { return &r.Email }),
			sqlengine.NewColumn("canceled", "Canceled", "BOOLEAN NOT NULL", func(r *Reader) *bool { return &r.Canceled }),
			sqlengine.NewColumn("version", "Version", "BIGINT NOT NULL", func(r *Reader) *int64 { return &r.Version }),
		}, auditColumns(func(r *Reader) *entitystore.AuditState { return &r.Audit })...),
		IDColumn:      "id",
		VersionColumn: "version",
	}
}

// auditColumns stores entitystore.AuditState. Only the deleted flag is queryable.
func auditColumns[T any](audit func(T) *entitystore.AuditState) []sqlengine.Column[T] {
	return []sqlengine.Column[T]{
		sqlengine.NewColumn("created_at", "", "TIMESTAMP NOT NULL", func(e T) *time.Time { return &audit(e).CreatedDate }),
		sqlengine.NewColumn("created_by", "", "TEXT NOT NULL", func(e T) *string { return &audit(e).CreatedBy }),
		sqlengine.NewColumn("updated_at", "", "TIMESTAMP NOT NULL", func(e T) *time.Time { return &audit(e).UpdatedDate }),
		sqlengine.NewColumn("updated_by", "", "TEXT NOT NULL", func(e T) *string { return &audit(e).UpdatedBy }),
		sqlengine.NewColumn("deleted", "Deleted", "BOOLEAN NOT NULL", func(e T) *bool { return &audit(e).Deleted }),
		sqlengine.NewColumn("deleted_at", "", "TIMESTAMP NOT NULL", func(e T) *time.Time { return &audit(e).DeletedDate }),
		sqlengine.NewColumn("deleted_by", "", "TEXT NOT NULL", func(e T) *string { return &audit(e).DeletedBy }),
		sqlengine.NewColumn("deleted_reason", "", "TEXT NOT NULL", func(e T) *string { return &audit(e).DeletedReason }),
	}
}

// BooksDocument maps Book to documents of the books collection.
func BooksDocument() mongoengine.Document[*Book] {
	return mongoengine.Document[*Book]{
		New: func() *Book { return &Book{} },
		ID:  func(b *Book) any { return b.ID },
		Keys: map[string]string{
			"Title":   "title",
			"Author":  "author",
			"ISBN":    "isbn",
			"LentTo":  "lentTo",
			"Deleted": "audit.deleted",
		},
		VersionKey: "version",
	}
}

// ReadersDocument maps Reader to documents of the readers collection.
func ReadersDocument() mongoengine.Document[*Reader] {
	return mongoengine.Document[*Reader]{
		New: func() *Reader { return &Reader{} },
		ID:  func(r *Reader) any { return r.ID },
		Keys: map[string]string{
			"Name":     "name",
			"Email":    "email",
			"Canceled": "canceled",
		},
		VersionKey: "version",
	}
}
