package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite" // driver registration

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/behaviors"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/catalog"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/config"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/eventsink"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/memengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/mongoengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/rediscache"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/sqlengine"
)

const (
	deleteReason = "removed from circulation"

	kafkaPartitions        = 1
	kafkaReplicationFactor = 1
)

// Logger is what every component logs to, *slog.Logger satisfies it.
type Logger interface {
	entitystore.Logger
	entitystore.ContextualLogger
}

// OpenOption configures Open.
type OpenOption func(*openSettings)

type openSettings struct {
	logger      Logger
	metrics     entitystore.MetricsCollector
	tracing     entitystore.TracingCollector
	redisClient redis.UniversalClient
	libraryOpts []Option
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger Logger) OpenOption {
	return func(s *openSettings) {
		s.logger = logger
	}
}

// WithObservability sets the collectors handed to every component, either may be nil.
func WithObservability(metrics entitystore.MetricsCollector, tracing entitystore.TracingCollector) OpenOption {
	return func(s *openSettings) {
		s.metrics = metrics
		s.tracing = tracing
	}
}

// WithRedisClient replaces the client created from the redis settings.
func WithRedisClient(client redis.UniversalClient) OpenOption {
	return func(s *openSettings) {
		s.redisClient = client
	}
}

// WithLibraryOptions passes options to the Library.
func WithLibraryOptions(opts ...Option) OpenOption {
	return func(s *openSettings) {
		s.libraryOpts = append(s.libraryOpts, opts...)
	}
}

// App is a Library with the storage and event sinks selected by config.Settings.
type App struct {
	Library  *Library
	Registry *entitystore.Registry

	// Bus receives every published event in process.
	Bus *eventsink.InProcess

	closers []func() error
}

// Close releases all connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	a.closers = nil

	return errors.Join(errs...)
}

type providers struct {
	books   entitystore.ProviderFactory[*Book]
	readers entitystore.ProviderFactory[*Reader]

	// outbox is set for the SQL engines. It writes in the transaction of the scope.
	outbox func(scope *entitystore.Scope) entitystore.EventPublisher
}

// Open connects the configured engine, cache and event sinks and returns the App using them.
func Open(ctx context.Context, settings config.Settings, opts ...OpenOption) (_ *App, err error) {
	var s openSettings
	for _, opt := range opts {
		opt(&s)
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	app := &App{}
	defer func() {
		if err != nil {
			err = errors.Join(err, app.Close())
		}
	}()

	p, err := app.openEngine(ctx, settings, s)
	if err != nil {
		return nil, err
	}

	if settings.Redis.Enabled {
		if p, err = app.cache(settings, s, p); err != nil {
			return nil, err
		}
	}

	publisher, err := app.publishers(ctx, settings, s, p.outbox)
	if err != nil {
		return nil, err
	}

	registry, err := entitystore.NewRegistry(entitystore.WithRegistryLogger(s.logger))
	if err != nil {
		return nil, err
	}

	if err := configure(registry, p.books, settings.Behaviors, s, publisher); err != nil {
		return nil, err
	}

	if err := configure(registry, p.readers, settings.Behaviors, s, publisher); err != nil {
		return nil, err
	}

	libraryOpts := []Option{WithMetrics(s.metrics)}

	if settings.Catalog.Path != "" {
		filters, err := catalog.Load(settings.Catalog.Path)
		if err != nil {
			return nil, err
		}

		if err := catalog.Validate(filters, BookSchema()); err != nil {
			return nil, err
		}

		libraryOpts = append(libraryOpts, WithFilters(filters))
	}

	lib, err := New(registry, append(libraryOpts, s.libraryOpts...)...)
	if err != nil {
		return nil, err
	}

	app.Library = lib
	app.Registry = registry

	return app, nil
}

func (a *App) openEngine(ctx context.Context, settings config.Settings, s openSettings) (providers, error) {
	switch settings.Engine {
	case config.EngineMemory:
		return openMemory(s)
	case config.EngineSQLite:
		return a.openSQLite(ctx, settings.SQLite, s)
	case config.EnginePostgres:
		return a.openPostgres(ctx, settings.Postgres, s)
	case config.EngineMongo:
		return a.openMongo(ctx, settings.Mongo, s)
	default:
		return providers{}, fmt.Errorf("%w: unknown engine %q", config.ErrInvalidSettings, settings.Engine)
	}
}

func openMemory(s openSettings) (providers, error) {
	books, err := memengine.NewProvider[*Book, string](memengine.WithLogger(s.logger))
	if err != nil {
		return providers{}, err
	}

	readers, err := memengine.NewProvider[*Reader, string](memengine.WithLogger(s.logger))
	if err != nil {
		return providers{}, err
	}

	return providers{
		books:   entitystore.SingletonProvider[*Book](books),
		readers: entitystore.SingletonProvider[*Reader](readers),
	}, nil
}

func sqlOptions(dialect sqlengine.Dialect, outboxTable string, s openSettings) []sqlengine.Option {
	options := []sqlengine.Option{
		sqlengine.WithDialect(dialect),
		sqlengine.WithLogger(s.logger),
		sqlengine.WithContextualLogger(s.logger),
	}

	if outboxTable != "" {
		options = append(options, sqlengine.WithOutboxTable(outboxTable))
	}

	if s.metrics != nil {
		options = append(options, sqlengine.WithMetrics(s.metrics))
	}

	if s.tracing != nil {
		options = append(options, sqlengine.WithTracing(s.tracing))
	}

	return options
}

func (a *App) openSQLite(ctx context.Context, settings config.SQLite, s openSettings) (providers, error) {
	db, err := sql.Open("sqlite", settings.Path)
	if err != nil {
		return providers{}, err
	}

	a.closers = append(a.closers, db.Close)

	// sqlite serializes writers, one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	options := sqlOptions(sqlengine.DialectSQLite, "", s)

	books, err := sqlengine.NewProviderFromSQLDB(BooksTable(), db, options...)
	if err != nil {
		return providers{}, err
	}

	readers, err := sqlengine.NewProviderFromSQLDB(ReadersTable(), db, options...)
	if err != nil {
		return providers{}, err
	}

	outbox, err := sqlengine.NewOutboxFromSQLDB(db, options...)
	if err != nil {
		return providers{}, err
	}

	// with one connection every statement of a scope must run in its transaction
	transactor, err := sqlengine.NewTransactorFromSQLDB(db, options...)
	if err != nil {
		return providers{}, err
	}

	if err := createTables(ctx, books, readers, outbox); err != nil {
		return providers{}, err
	}

	return scopedProviders(transactor, books, readers, outbox), nil
}

func (a *App) openPostgres(ctx context.Context, settings config.Postgres, s openSettings) (providers, error) {
	primary, err := pgxpool.New(ctx, settings.DSN)
	if err != nil {
		return providers{}, err
	}

	a.closers = append(a.closers, func() error { primary.Close(); return nil })

	options := sqlOptions(sqlengine.DialectPostgres, settings.OutboxTable, s)

	var (
		books   *sqlengine.Provider[*Book]
		readers *sqlengine.Provider[*Reader]
	)

	if settings.ReplicaDSN != "" {
		replica, err := pgxpool.New(ctx, settings.ReplicaDSN)
		if err != nil {
			return providers{}, err
		}

		a.closers = append(a.closers, func() error { replica.Close(); return nil })

		if books, err = sqlengine.NewProviderFromPGXPoolAndReplica(BooksTable(), primary, replica, options...); err != nil {
			return providers{}, err
		}

		if readers, err = sqlengine.NewProviderFromPGXPoolAndReplica(ReadersTable(), primary, replica, options...); err != nil {
			return providers{}, err
		}
	} else {
		if books, err = sqlengine.NewProviderFromPGXPool(BooksTable(), primary, options...); err != nil {
			return providers{}, err
		}

		if readers, err = sqlengine.NewProviderFromPGXPool(ReadersTable(), primary, options...); err != nil {
			return providers{}, err
		}
	}

	outbox, err := sqlengine.NewOutboxFromPGXPool(primary, options...)
	if err != nil {
		return providers{}, err
	}

	transactor, err := sqlengine.NewTransactorFromPGXPool(primary, options...)
	if err != nil {
		return providers{}, err
	}

	if err := createTables(ctx, books, readers, outbox); err != nil {
		return providers{}, err
	}

	return scopedProviders(transactor, books, readers, outbox), nil
}

// scopedProviders binds books, readers and outbox to one transaction per scope. A command's entity
// changes and the events it records are committed together when its scope closes.
func scopedProviders(
	transactor *sqlengine.Transactor,
	books *sqlengine.Provider[*Book],
	readers *sqlengine.Provider[*Reader],
	outbox *sqlengine.Outbox,
) providers {
	return providers{
		books:   sqlengine.ScopedProvider(transactor, books),
		readers: sqlengine.ScopedProvider(transactor, readers),
		outbox:  sqlengine.ScopedOutbox(transactor, outbox),
	}
}

type tableCreator interface {
	CreateTable(ctx context.Context) error
}

func createTables(ctx context.Context, creators ...tableCreator) error {
	for _, c := range creators {
		if err := c.CreateTable(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) openMongo(ctx context.Context, settings config.Mongo, s openSettings) (providers, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(settings.URI))
	if err != nil {
		return providers{}, err
	}

	a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })

	db := client.Database(settings.Database)

	mongoOptions := []mongoengine.Option{
		mongoengine.WithLogger(s.logger),
		mongoengine.WithContextualLogger(s.logger),
	}

	if s.metrics != nil {
		mongoOptions = append(mongoOptions, mongoengine.WithMetrics(s.metrics))
	}

	if s.tracing != nil {
		mongoOptions = append(mongoOptions, mongoengine.WithTracing(s.tracing))
	}

	books, err := mongoengine.NewProvider(BooksDocument(), mongoengine.WrapCollection(db.Collection(booksCollection)), mongoOptions...)
	if err != nil {
		return providers{}, err
	}

	readers, err := mongoengine.NewProvider(ReadersDocument(), mongoengine.WrapCollection(db.Collection(readersCollection)), mongoOptions...)
	if err != nil {
		return providers{}, err
	}

	return providers{
		books:   entitystore.SingletonProvider[*Book](books),
		readers: entitystore.SingletonProvider[*Reader](readers),
	}, nil
}

func (a *App) cache(settings config.Settings, s openSettings, p providers) (providers, error) {
	client := s.redisClient
	if client == nil {
		created := redis.NewClient(&redis.Options{Addr: settings.Redis.Addr})
		a.closers = append(a.closers, created.Close)
		client = created
	}

	cacheOptions := func(prefix string) []rediscache.Option {
		options := []rediscache.Option{
			rediscache.WithPrefix(prefix),
			rediscache.WithTTL(settings.Redis.TTL),
			rediscache.WithLogger(s.logger),
			rediscache.WithContextualLogger(s.logger),
		}

		if s.metrics != nil {
			options = append(options, rediscache.WithMetrics(s.metrics))
		}

		return options
	}

	return providers{
		books:   cached(p.books, client, cacheOptions("library:"+booksCollection)),
		readers: cached(p.readers, client, cacheOptions("library:"+readersCollection)),
		outbox:  p.outbox,
	}, nil
}

// cached wraps the provider of every scope with a read cache.
func cached[T any](factory entitystore.ProviderFactory[T], client redis.UniversalClient, options []rediscache.Option) entitystore.ProviderFactory[T] {
	return func(scope *entitystore.Scope) (entitystore.Provider[T], error) {
		inner, err := factory(scope)
		if err != nil {
			return nil, err
		}

		provider, err := rediscache.New(inner, client, options...)
		if err != nil {
			return nil, err
		}

		return provider, nil
	}
}

// publishers returns the per-scope fan-out of the SQL outbox, the in-process bus and Kafka as far as
// configured. Publishing stops at the first failing sink. The outbox goes first, it is the only sink
// rolled back with the entity change.
func (a *App) publishers(
	ctx context.Context,
	settings config.Settings,
	s openSettings,
	outbox func(scope *entitystore.Scope) entitystore.EventPublisher,
) (func(scope *entitystore.Scope) entitystore.EventPublisher, error) {
	sinkOptions := []eventsink.Option{
		eventsink.WithLogger(s.logger),
		eventsink.WithContextualLogger(s.logger),
	}

	if s.metrics != nil {
		sinkOptions = append(sinkOptions, eventsink.WithMetrics(s.metrics))
	}

	bus, err := eventsink.NewInProcess(sinkOptions...)
	if err != nil {
		return nil, err
	}

	a.Bus = bus

	sinks := []entitystore.EventPublisher{bus}

	if settings.Kafka.Enabled {
		client, err := eventsink.NewKafkaClient(settings.Kafka.Brokers, settings.Kafka.Topic)
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, func() error { client.Close(); return nil })

		if err := eventsink.EnsureTopic(ctx, client, settings.Kafka.Topic, kafkaPartitions, kafkaReplicationFactor); err != nil {
			return nil, err
		}

		kafka, err := eventsink.NewKafka(client, settings.Kafka.Topic, sinkOptions...)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, kafka)
	}

	return func(scope *entitystore.Scope) entitystore.EventPublisher {
		scoped := sinks
		if outbox != nil {
			scoped = append([]entitystore.EventPublisher{outbox(scope)}, sinks...)
		}

		return fanOut(scoped)
	}, nil
}

func fanOut(sinks []entitystore.EventPublisher) entitystore.EventPublisher {
	return entitystore.EventPublisherFunc(func(ctx context.Context, events ...entitystore.DomainEvent) error {
		for _, sink := range sinks {
			if err := sink.Publish(ctx, events...); err != nil {
				return err
			}
		}

		return nil
	})
}

// configure registers provider and the behaviors enabled in settings for T.
// Behaviors run in the order logging, audit, validation, domain events.
func configure[T any](
	registry *entitystore.Registry,
	provider entitystore.ProviderFactory[T],
	settings config.Behaviors,
	s openSettings,
	publisher func(scope *entitystore.Scope) entitystore.EventPublisher,
) error {
	validator, err := behaviors.NewStructValidator[T]()
	if err != nil {
		return err
	}

	entitystore.Configure(registry, func(c *entitystore.Configurator[T]) {
		c.UseProvider(provider)

		if settings.Logging {
			behaviors.WithLogging(c, behaviors.LoggingOptions{
				Logger:           s.logger,
				ContextualLogger: s.logger,
				Metrics:          s.metrics,
				Tracing:          s.tracing,
			})
		}

		if settings.Audit {
			behaviors.WithAuditState(c, behaviors.AuditOptions{
				SoftDelete:   settings.SoftDelete,
				DeleteReason: deleteReason,
			})
		}

		behaviors.WithValidator(c, validator, entitystore.ApplyOnInsert|entitystore.ApplyOnUpdate|entitystore.ApplyOnUpsert)

		if settings.DomainEvents {
			behaviors.WithDomainEvents(c, behaviors.DomainEventOptions{
				PublisherFromScope: publisher,
				Phase:              settings.Phase(),
				Order:              settings.Order(),
			})
		}
	})

	return nil
}
