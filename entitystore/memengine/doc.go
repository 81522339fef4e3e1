// Package memengine provides an in-memory implementation of entitystore.Provider.
//
// Entities are kept in insertion order and queried by evaluating specifications in memory.
// It is meant for tests and for small, process-local data sets.
package memengine
