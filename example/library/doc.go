// Package library is an example domain built on entitystore: book copies are added to circulation,
// lent to registered readers and returned. It shows
//   - entities with versions, audit state and domain events
//   - a registry wiring providers, behaviors and validators per entity type
//   - the same domain stored in memory, in SQL (PostgreSQL or SQLite) or in MongoDB, optionally
//     behind a Redis cache, publishing its events to an outbox table, Kafka and an in-process bus
//   - named filters from a YAML catalog next to specifications built in code
package library
