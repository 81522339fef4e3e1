// Package rediscache decorates an entitystore.Provider with a read-through cache in Redis.
//
// Reads are cached under prefix:generation:operation:hash, where hash is the xxhash of the
// specifications, the find options and the projected fields. Values are msgpack encoded, so
// entity types need msgpack-compatible fields. Every successful mutation increments the generation
// key of the prefix, which invalidates all cached reads of the entity type at once. Redis failures
// never fail an operation, the inner provider answers instead.
package rediscache
