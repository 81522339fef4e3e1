package mongoengine

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidDocument = errors.New("invalid document definition")

const defaultIDKey = "_id"

// IncludeLoader completes the related data named by an include path on loaded entities.
type IncludeLoader[T any] func(ctx context.Context, items []T) error

// Document describes how entities of type T are stored in a collection.
type Document[T any] struct {
	New func() T

	// ID returns the value stored under IDKey.
	ID func(entity T) any

	// IDKey defaults to "_id".
	IDKey string

	// Keys maps specification members to document keys, dotted keys address embedded documents.
	// The id member does not need an entry when it is named "ID".
	Keys map[string]string

	// VersionKey names an optional key used for optimistic concurrency.
	// Entities must implement entitystore.Versioned when it is set.
	VersionKey string

	Includes map[string]IncludeLoader[T]
}

func (d Document[T]) validate() error {
	switch {
	case d.New == nil:
		return fmt.Errorf("%w: no constructor", ErrInvalidDocument)
	case d.ID == nil:
		return fmt.Errorf("%w: no id accessor", ErrInvalidDocument)
	}

	return nil
}

func (d Document[T]) idKey() string {
	if d.IDKey == "" {
		return defaultIDKey
	}

	return d.IDKey
}

func (d Document[T]) key(member string) (string, bool) {
	if key, ok := d.Keys[member]; ok {
		return key, true
	}

	if member == "ID" {
		return d.idKey(), true
	}

	return "", false
}
