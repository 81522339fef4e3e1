package mongoengine

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor iterates find results.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Collection is the subset of *mongo.Collection the Provider uses.
type Collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (Cursor, error)
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
}

// mongoCollection adapts *mongo.Collection to Collection.
type mongoCollection struct {
	*mongo.Collection
}

// WrapCollection adapts a driver collection.
func WrapCollection(collection *mongo.Collection) Collection {
	return &mongoCollection{Collection: collection}
}

func (m *mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (Cursor, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	return cursor, nil
}
