package library

import (
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// Book is a copy of a book the library owns.
type Book struct {
	ID     string  `msgpack:"id"     bson:"_id"                validate:"required"`
	Title  string  `msgpack:"title"  bson:"title"              validate:"required,max=200"`
	Author string  `msgpack:"author" bson:"author"             validate:"required,max=200"`
	ISBN   string  `msgpack:"isbn"   bson:"isbn"               validate:"required,isbn"`
	LentTo *string `msgpack:"lentTo" bson:"lentTo,omitempty"`

	Version int64                  `msgpack:"version" bson:"version"`
	Audit   entitystore.AuditState `msgpack:"audit"   bson:"audit"`

	entitystore.EventRecording `msgpack:"-" bson:"-"`
}

func (b *Book) EntityID() string                    { return b.ID }
func (b *Book) EntityVersion() int64                { return b.Version }
func (b *Book) SetEntityVersion(version int64)      { b.Version = version }
func (b *Book) AuditState() *entitystore.AuditState { return &b.Audit }

// IsLent reports whether the copy is currently lent out.
func (b *Book) IsLent() bool {
	return b.LentTo != nil
}

// Reader is a person with a library contract.
type Reader struct {
	ID       string `msgpack:"id"       bson:"_id"      validate:"required"`
	Name     string `msgpack:"name"     bson:"name"     validate:"required,max=100"`
	Email    string `msgpack:"email"    bson:"email"    validate:"required,email"`
	Canceled bool   `msgpack:"canceled" bson:"canceled"`

	Version int64                  `msgpack:"version" bson:"version"`
	Audit   entitystore.AuditState `msgpack:"audit"   bson:"audit"`

	entitystore.EventRecording `msgpack:"-" bson:"-"`
}

func (r *Reader) EntityID() string                    { return r.ID }
func (r *Reader) EntityVersion() int64                { return r.Version }
func (r *Reader) SetEntityVersion(version int64)      { r.Version = version }
func (r *Reader) AuditState() *entitystore.AuditState { return &r.Audit }

// Members of Book.
var (
	BookID      = entitystore.NewField("ID", func(b *Book) string { return b.ID })
	BookTitle   = entitystore.NewField("Title", func(b *Book) string { return b.Title })
	BookAuthor  = entitystore.NewField("Author", func(b *Book) string { return b.Author })
	BookISBN    = entitystore.NewField("ISBN", func(b *Book) string { return b.ISBN })
	BookLentTo  = entitystore.NewField("LentTo", func(b *Book) *string { return b.LentTo })
	BookDeleted = entitystore.NewField("Deleted", func(b *Book) bool { return b.Audit.Deleted })
)

// Members of Reader.
var (
	ReaderID       = entitystore.NewField("ID", func(r *Reader) string { return r.ID })
	ReaderName     = entitystore.NewField("Name", func(r *Reader) string { return r.Name })
	ReaderEmail    = entitystore.NewField("Email", func(r *Reader) string { return r.Email })
	ReaderCanceled = entitystore.NewField("Canceled", func(r *Reader) bool { return r.Canceled })
)

// InCirculation matches copies that were not removed.
func InCirculation() entitystore.Specification[*Book] {
	return BookDeleted.Eq(false)
}

// LentTo matches copies lent to readerID.
func LentTo(readerID string) entitystore.Specification[*Book] {
	return BookLentTo.Eq(&readerID)
}

// Available matches copies in circulation that are not lent out.
func Available() entitystore.Specification[*Book] {
	return InCirculation().And(BookLentTo.IsNull())
}

// BookSchema lists the Book members textual filters may use.
func BookSchema() *entitystore.Schema[*Book] {
	return mustSchema([]entitystore.FieldAccessor[*Book]{BookID, BookTitle, BookAuthor, BookISBN, BookLentTo, BookDeleted})
}

// ReaderSchema lists the Reader members textual filters may use.
func ReaderSchema() *entitystore.Schema[*Reader] {
	return mustSchema([]entitystore.FieldAccessor[*Reader]{ReaderID, ReaderName, ReaderEmail, ReaderCanceled})
}

func mustSchema[T any](fields []entitystore.FieldAccessor[T]) *entitystore.Schema[T] {
	schema, err := entitystore.NewSchema(fields)
	if err != nil {
		panic(err)
	}

	return schema
}

// Event types.
const (
	BookCopyAddedToCirculationEventType     = "BookCopyAddedToCirculation"
	BookCopyRemovedFromCirculationEventType = "BookCopyRemovedFromCirculation"
	BookCopyLentToReaderEventType           = "BookCopyLentToReader"
	BookCopyReturnedByReaderEventType       = "BookCopyReturnedByReader"
	ReaderRegisteredEventType               = "ReaderRegistered"
	ReaderContractCanceledEventType         = "ReaderContractCanceled"
)

// BookEvent is recorded by Book for every change of circulation or lending.
type BookEvent struct {
	Type     string    `json:"type"`
	BookID   string    `json:"bookId"`
	ReaderID string    `json:"readerId,omitempty"`
	At       time.Time `json:"occurredAt"`
}

func (e BookEvent) EventType() string     { return e.Type }
func (e BookEvent) OccurredAt() time.Time { return e.At }
func (e BookEvent) AggregateID() string   { return e.BookID }

// ReaderEvent is recorded by Reader on registration and cancellation.
type ReaderEvent struct {
	Type     string    `json:"type"`
	ReaderID string    `json:"readerId"`
	Name     string    `json:"name,omitempty"`
	At       time.Time `json:"occurredAt"`
}

func (e ReaderEvent) EventType() string     { return e.Type }
func (e ReaderEvent) OccurredAt() time.Time { return e.At }
func (e ReaderEvent) AggregateID() string   { return e.ReaderID }

func toOccurredAt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
