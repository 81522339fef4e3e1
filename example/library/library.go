package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/catalog"
)

const defaultMaxBooksPerReader = 10

// Command names, used as the command label of retry metrics.
const (
	CommandAddBookCopy          = "AddBookCopy"
	CommandRemoveBookCopy       = "RemoveBookCopy"
	CommandRegisterReader       = "RegisterReader"
	CommandCancelReaderContract = "CancelReaderContract"
	CommandLendBookCopy         = "LendBookCopyToReader"
	CommandReturnBookCopy       = "ReturnBookCopyFromReader"
)

var (
	ErrBookNotInCirculation  = errors.New("book is not in circulation")
	ErrBookAlreadyLent       = errors.New("book is already lent")
	ErrBookNotLentToReader   = errors.New("book is not lent to this reader")
	ErrReaderNotRegistered   = errors.New("reader is not registered")
	ErrReaderHasTooManyBooks = errors.New("reader has too many books")
	ErrReaderHasLentBooks    = errors.New("reader still has lent books")
)

// Option configures a Library.
type Option func(*Library) error

// WithClock sets the time source for recorded events.
func WithClock(clock func() time.Time) Option {
	return func(l *Library) error {
		l.clock = clock
		return nil
	}
}

// WithMaxBooksPerReader limits the number of copies lent to one reader, 10 by default.
func WithMaxBooksPerReader(limit int) Option {
	return func(l *Library) error {
		if limit <= 0 {
			return fmt.Errorf("max books per reader must be positive, got %d", limit)
		}

		l.maxBooksPerReader = limit

		return nil
	}
}

// WithMetrics sets the collector receiving retry metrics.
func WithMetrics(collector entitystore.MetricsCollector) Option {
	return func(l *Library) error {
		l.metrics = collector
		return nil
	}
}

// WithRetry configures the retries of commands hitting a concurrency conflict.
func WithRetry(options ...RetryOption) Option {
	return func(l *Library) error {
		l.retry = append(l.retry, options...)
		return nil
	}
}

// WithFilters sets the named book filters available through FindBooks.
func WithFilters(filters *catalog.Catalog) Option {
	return func(l *Library) error {
		l.filters = filters
		return nil
	}
}

// Library runs the lending use cases on top of an entity registry configured for Book and Reader.
// Every command resolves its entity contexts from a fresh scope.
type Library struct {
	registry          *entitystore.Registry
	clock             func() time.Time
	maxBooksPerReader int
	metrics           entitystore.MetricsCollector
	retry             []RetryOption
	filters           *catalog.Catalog
	bookSchema        *entitystore.Schema[*Book]
}

// New creates a Library. Book and Reader must be configured in registry.
func New(registry *entitystore.Registry, options ...Option) (*Library, error) {
	if !entitystore.IsConfigured[*Book](registry) {
		return nil, fmt.Errorf("%w: %T", entitystore.ErrEntityTypeNotConfigured, (*Book)(nil))
	}

	if !entitystore.IsConfigured[*Reader](registry) {
		return nil, fmt.Errorf("%w: %T", entitystore.ErrEntityTypeNotConfigured, (*Reader)(nil))
	}

	l := &Library{
		registry:          registry,
		clock:             time.Now,
		maxBooksPerReader: defaultMaxBooksPerReader,
		bookSchema:        BookSchema(),
	}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	if l.filters == nil {
		filters, err := catalog.New()
		if err != nil {
			return nil, err
		}

		l.filters = filters
	}

	return l, nil
}

type contexts struct {
	books   *entitystore.EntityContext[*Book]
	readers *entitystore.EntityContext[*Reader]
}

// within resolves both entity contexts from a new scope and disposes the scope when fn returns.
func (l *Library) within(fn func(c contexts) error) (err error) {
	scope := entitystore.NewScope()
	defer func() {
		err = errors.Join(err, scope.Close())
	}()

	books, err := entitystore.Resolve[*Book](l.registry, scope)
	if err != nil {
		return err
	}

	readers, err := entitystore.Resolve[*Reader](l.registry, scope)
	if err != nil {
		return err
	}

	return fn(contexts{books: books, readers: readers})
}

func (l *Library) command(ctx context.Context, name string, fn func(ctx context.Context, c contexts) error) error {
	options := append([]RetryOption{withRetryMetrics(l.metrics, name)}, l.retry...)

	return RetryOnConflict(ctx, func(ctx context.Context) error {
		return l.within(func(c contexts) error {
			return fn(ctx, c)
		})
	}, options...)
}

func (l *Library) now() time.Time {
	return toOccurredAt(l.clock())
}

// AddBookCopy puts a new copy into circulation.
func (l *Library) AddBookCopy(ctx context.Context, id, title, author, isbn string) (*Book, error) {
	var added *Book

	err := l.command(ctx, CommandAddBookCopy, func(ctx context.Context, c contexts) error {
		book := &Book{ID: id, Title: title, Author: author, ISBN: isbn}
		book.RecordEvent(BookEvent{Type: BookCopyAddedToCirculationEventType, BookID: id, At: l.now()})

		var err error
		added, err = c.books.Insert(ctx, book)

		return err
	})
	if err != nil {
		return nil, err
	}

	return added, nil
}

// RemoveBookCopy takes a copy out of circulation. Lent copies cannot be removed.
func (l *Library) RemoveBookCopy(ctx context.Context, bookID string) error {
	return l.command(ctx, CommandRemoveBookCopy, func(ctx context.Context, c contexts) error {
		book, err := l.bookInCirculation(ctx, c, bookID)
		if err != nil {
			return err
		}

		if book.IsLent() {
			return fmt.Errorf("%w: %s", ErrBookAlreadyLent, bookID)
		}

		book.RecordEvent(BookEvent{Type: BookCopyRemovedFromCirculationEventType, BookID: bookID, At: l.now()})

		return c.books.Delete(ctx, book)
	})
}

// RegisterReader signs a reader's contract.
func (l *Library) RegisterReader(ctx context.Context, id, name, email string) (*Reader, error) {
	var registered *Reader

	err := l.command(ctx, CommandRegisterReader, func(ctx context.Context, c contexts) error {
		reader := &Reader{ID: id, Name: name, Email: email}
		reader.RecordEvent(ReaderEvent{Type: ReaderRegisteredEventType, ReaderID: id, Name: name, At: l.now()})

		var err error
		registered, err = c.readers.Insert(ctx, reader)

		return err
	})
	if err != nil {
		return nil, err
	}

	return registered, nil
}

// CancelReaderContract ends a contract. Readers must return all copies first.
// Canceling a canceled contract does nothing.
func (l *Library) CancelReaderContract(ctx context.Context, readerID string) error {
	return l.command(ctx, CommandCancelReaderContract, func(ctx context.Context, c contexts) error {
		reader, err := l.reader(ctx, c, readerID)
		if err != nil {
			return err
		}

		if reader.Canceled {
			return nil
		}

		lent, err := c.books.Query().Where(InCirculation()).And(LentTo(readerID)).Any(ctx)
		if err != nil {
			return err
		}

		if lent {
			return fmt.Errorf("%w: %s", ErrReaderHasLentBooks, readerID)
		}

		reader.Canceled = true
		reader.RecordEvent(ReaderEvent{Type: ReaderContractCanceledEventType, ReaderID: readerID, At: l.now()})

		_, err = c.readers.Update(ctx, reader)

		return err
	})
}

// LendBookCopyToReader lends a copy in circulation to an active reader.
// Lending a copy to the reader who already has it does nothing.
func (l *Library) LendBookCopyToReader(ctx context.Context, bookID, readerID string) error {
	return l.command(ctx, CommandLendBookCopy, func(ctx context.Context, c contexts) error {
		book, err := l.bookInCirculation(ctx, c, bookID)
		if err != nil {
			return err
		}

		if book.LentTo != nil {
			if *book.LentTo == readerID {
				return nil
			}

			return fmt.Errorf("%w: %s", ErrBookAlreadyLent, bookID)
		}

		reader, err := l.reader(ctx, c, readerID)
		if err != nil {
			return err
		}

		if reader.Canceled {
			return fmt.Errorf("%w: %s", ErrReaderNotRegistered, readerID)
		}

		count, err := c.books.Query().Where(InCirculation()).And(LentTo(readerID)).Count(ctx)
		if err != nil {
			return err
		}

		if count >= int64(l.maxBooksPerReader) {
			return fmt.Errorf("%w: %s", ErrReaderHasTooManyBooks, readerID)
		}

		book.LentTo = &readerID
		book.RecordEvent(BookEvent{Type: BookCopyLentToReaderEventType, BookID: bookID, ReaderID: readerID, At: l.now()})

		_, err = c.books.Update(ctx, book)

		return err
	})
}

// ReturnBookCopyFromReader takes a lent copy back.
func (l *Library) ReturnBookCopyFromReader(ctx context.Context, bookID, readerID string) error {
	return l.command(ctx, CommandReturnBookCopy, func(ctx context.Context, c contexts) error {
		book, err := l.bookInCirculation(ctx, c, bookID)
		if err != nil {
			return err
		}

		if book.LentTo == nil || *book.LentTo != readerID {
			return fmt.Errorf("%w: %s", ErrBookNotLentToReader, bookID)
		}

		book.LentTo = nil
		book.RecordEvent(BookEvent{Type: BookCopyReturnedByReaderEventType, BookID: bookID, ReaderID: readerID, At: l.now()})

		_, err = c.books.Update(ctx, book)

		return err
	})
}

func (l *Library) bookInCirculation(ctx context.Context, c contexts, bookID string) (*Book, error) {
	book, err := c.books.Query().Where(BookID.Eq(bookID)).And(InCirculation()).First(ctx)
	if errors.Is(err, entitystore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBookNotInCirculation, bookID)
	}

	return book, err
}

func (l *Library) reader(ctx context.Context, c contexts, readerID string) (*Reader, error) {
	reader, err := c.readers.Query().Where(ReaderID.Eq(readerID)).First(ctx)
	if errors.Is(err, entitystore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReaderNotRegistered, readerID)
	}

	return reader, err
}

// BookListing is the read model of a copy in circulation.
type BookListing struct {
	BookID string
	Title  string
	Author string
	IsLent bool
}

var bookListing = entitystore.NewProjection(func(b *Book) BookListing {
	return BookListing{BookID: b.ID, Title: b.Title, Author: b.Author, IsLent: b.IsLent()}
}, BookID, BookTitle, BookAuthor, BookLentTo)

// BooksInCirculation returns one page of the copies in circulation ordered by title.
func (l *Library) BooksInCirculation(ctx context.Context, skip, take int) (entitystore.PagedResult[BookListing], error) {
	var page entitystore.PagedResult[BookListing]

	err := l.within(func(c contexts) error {
		query := c.books.Query().Where(InCirculation()).OrderBy(BookTitle).OrderBy(BookID).Skip(skip).Take(take)

		var err error
		page, err = entitystore.Select(query, bookListing).ToPagedList(ctx)

		return err
	})

	return page, err
}

// BooksLentByReader returns the copies a reader currently has, ordered by title.
func (l *Library) BooksLentByReader(ctx context.Context, readerID string) ([]*Book, error) {
	var books []*Book

	err := l.within(func(c contexts) error {
		var err error
		books, err = c.books.Query().Where(InCirculation()).And(LentTo(readerID)).OrderBy(BookTitle).ToList(ctx)

		return err
	})

	return books, err
}

// RegisteredReaders returns the readers with an active contract ordered by name.
func (l *Library) RegisteredReaders(ctx context.Context) ([]*Reader, error) {
	var readers []*Reader

	err := l.within(func(c contexts) error {
		var err error
		readers, err = c.readers.Query().Where(ReaderCanceled.Eq(false)).OrderBy(ReaderName).ToList(ctx)

		return err
	})

	return readers, err
}

// FindBooks runs the named filter against all copies, including removed ones unless the filter excludes them.
func (l *Library) FindBooks(ctx context.Context, filter string, params ...any) ([]*Book, error) {
	spec, err := catalog.Lookup(l.filters, l.bookSchema, filter, params...)
	if err != nil {
		return nil, err
	}

	var books []*Book

	err = l.within(func(c contexts) error {
		books, err = c.books.Query().Where(spec).OrderBy(BookID).ToList(ctx)
		return err
	})

	return books, err
}
