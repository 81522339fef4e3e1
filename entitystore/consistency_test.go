package entitystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

func Test_ConsistencyLevel(t *testing.T) {
	ctx := t.Context()

	assert.Equal(t, entitystore.StrongConsistency, entitystore.GetConsistencyLevel(ctx))
	assert.Equal(t, entitystore.EventualConsistency, entitystore.GetConsistencyLevel(entitystore.WithEventualConsistency(ctx)))
	assert.Equal(t, entitystore.StrongConsistency,
		entitystore.GetConsistencyLevel(entitystore.WithStrongConsistency(entitystore.WithEventualConsistency(ctx))))
	assert.Equal(t, "eventual", entitystore.EventualConsistency.String())
	assert.Equal(t, "unknown", entitystore.ConsistencyLevel(7).String())
}

func Test_ActorFrom(t *testing.T) {
	assert.Equal(t, entitystore.DefaultActor, entitystore.ActorFrom(t.Context()))
	assert.Equal(t, entitystore.DefaultActor, entitystore.ActorFrom(entitystore.WithActor(t.Context(), "")))
	assert.Equal(t, "alice", entitystore.ActorFrom(entitystore.WithActor(t.Context(), "alice")))
}
