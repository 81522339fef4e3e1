// Package sqlengine implements entitystore.Provider on top of a relational database.
//
// Specifications are lowered to SQL with goqu and sent as prepared statements. PostgreSQL is the
// primary target, SQLite is supported for embedded use and tests. The provider can be created from
// a pgxpool.Pool (optionally with a read replica used for eventually consistent reads), a sql.DB or
// a sqlx.DB:
//
//	people, err := sqlengine.NewProviderFromPGXPool(peopleTable, pool,
//		sqlengine.WithLogger(logger),
//		sqlengine.WithMetrics(metrics),
//	)
//
// An entity type is described by a Table: its columns, the specification member each column
// backs, the id column and an optional version column for optimistic concurrency.
//
// Outbox stores domain events in the same database, to be relayed by a separate process.
// A Transactor gives every entitystore.Scope one transaction shared by the providers and the outbox
// resolved for it, committed or rolled back when the scope closes:
//
//	entitystore.Configure(registry, func(c *entitystore.Configurator[*Person]) {
//		c.UseProvider(sqlengine.ScopedProvider(transactor, people))
//		behaviors.WithDomainEvents(c, behaviors.DomainEventOptions{
//			PublisherFromScope: sqlengine.ScopedOutbox(transactor, outbox),
//		})
//	})
package sqlengine
