package mongoengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/mongoengine"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func personDocument() mongoengine.Document[*fixtures.Person] {
	return mongoengine.Document[*fixtures.Person]{
		New: func() *fixtures.Person { return &fixtures.Person{} },
		ID:  func(p *fixtures.Person) any { return p.ID },
		Keys: map[string]string{
			"Name":         "name",
			"Age":          "age",
			"Email":        "email",
			"Active":       "active",
			"Address.City": "address.city",
		},
		VersionKey: "version",
	}
}

type findCall struct {
	filter any
	opts   *options.FindOptions
}

// collectionFake records calls. Unset functions answer with empty results.
type collectionFake struct {
	documents []any
	findErr   error
	insertErr error
	matched   int64
	deleted   int64
	count     int64

	finds    []findCall
	inserts  []any
	replaces []any
	filters  []any
}

func (c *collectionFake) Find(_ context.Context, filter any, opts ...*options.FindOptions) (mongoengine.Cursor, error) {
	call := findCall{filter: filter}
	if len(opts) > 0 {
		call.opts = opts[0]
	}
	c.finds = append(c.finds, call)

	if c.findErr != nil {
		return nil, c.findErr
	}

	return mongo.NewCursorFromDocuments(c.documents, nil, nil)
}

func (c *collectionFake) InsertOne(_ context.Context, document any, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if c.insertErr != nil {
		return nil, c.insertErr
	}

	c.inserts = append(c.inserts, document)

	return &mongo.InsertOneResult{}, nil
}

func (c *collectionFake) ReplaceOne(_ context.Context, filter any, replacement any, _ ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	c.filters = append(c.filters, filter)
	c.replaces = append(c.replaces, replacement)

	return &mongo.UpdateResult{MatchedCount: c.matched}, nil
}

func (c *collectionFake) DeleteOne(_ context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.filters = append(c.filters, filter)

	return &mongo.DeleteResult{DeletedCount: c.deleted}, nil
}

func (c *collectionFake) CountDocuments(_ context.Context, filter any, _ ...*options.CountOptions) (int64, error) {
	c.filters = append(c.filters, filter)

	return c.count, nil
}

func newProvider(t *testing.T, collection mongoengine.Collection, opts ...mongoengine.Option) *mongoengine.Provider[*fixtures.Person] {
	t.Helper()

	provider, err := mongoengine.NewProvider(personDocument(), collection, opts...)
	require.NoError(t, err)

	return provider
}
