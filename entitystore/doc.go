// Package entitystore provides a storage agnostic persistence layer for entities.
//
// It is built from four pieces:
//   - Specification: composable, immutable predicates over an entity type, evaluable in memory
//     and lowerable by providers into their native query language
//   - Provider: the storage contract (insert, update, upsert, delete, find, count, project)
//   - Pipeline: before/after hooks around mutations (logging, auditing, domain events, validation)
//   - Registry, Scope and EntityContext: per-type configuration and per-unit-of-work resolution
//
// Common usage pattern:
//
//	store, _ := memengine.NewProvider[*Person, string]()
//	registry, _ := entitystore.NewRegistry()
//	entitystore.Configure(registry, func(c *entitystore.Configurator[*Person]) {
//		c.UseProvider(entitystore.SingletonProvider[*Person](store))
//		behaviors.WithAuditState(c, behaviors.AuditOptions{})
//	})
//
//	scope := entitystore.NewScope()
//	defer scope.Close()
//
//	people, err := entitystore.Resolve[*Person](registry, scope)
//	if err != nil {
//		// handle error
//	}
//
//	_, err = people.Insert(ctx, person)
//	adults, err := people.Query().Where(age.Gte(18)).OrderBy(name).Take(10).ToList(ctx)
//
// Specifications can also be parsed from text against a Schema:
//
//	spec, err := schema.Parse("Age >= @0 && Name startswith @1", 18, "A")
package entitystore
