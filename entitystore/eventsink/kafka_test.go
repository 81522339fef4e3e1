package eventsink_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/eventsink"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/spies"
)

// producerFake records produced records and fails every record with err when set.
type producerFake struct {
	records []*kgo.Record
	err     error
}

func (p *producerFake) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))

	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}

		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}

	return results
}

func header(record *kgo.Record, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func Test_NewKafka_Rejects_Invalid_Input(t *testing.T) {
	_, err := eventsink.NewKafka(nil, "people")
	assert.ErrorIs(t, err, eventsink.ErrNilProducer)

	_, err = eventsink.NewKafka(&producerFake{}, "")
	assert.ErrorIs(t, err, eventsink.ErrEmptyTopic)
}

func Test_Kafka_Publish_Produces_One_Keyed_Record_Per_Event(t *testing.T) {
	producer := &producerFake{}
	sink, err := eventsink.NewKafka(producer, "people")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := entitystore.WithActor(t.Context(), "alice")

	err = sink.Publish(ctx,
		fixtures.PersonRenamed{PersonID: "p01", NewName: "Ann", At: at},
		fixtures.PersonRenamed{PersonID: "p02", NewName: "Bob", At: at},
	)

	require.NoError(t, err)
	require.Len(t, producer.records, 2)

	first := producer.records[0]
	assert.Equal(t, "people", first.Topic)
	assert.Equal(t, "p01", string(first.Key))
	assert.Equal(t, "p02", string(producer.records[1].Key))
	assert.Equal(t, "PersonRenamed", header(first, eventsink.HeaderEventType))
	assert.True(t, at.Equal(first.Timestamp))

	var envelope eventsink.Envelope
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(first.Value, &envelope))
	assert.Equal(t, header(first, eventsink.HeaderEventID), envelope.EventID)
	assert.Equal(t, "PersonRenamed", envelope.EventType)
	assert.Equal(t, "p01", envelope.AggregateID)
	assert.True(t, at.Equal(envelope.OccurredAt))
	assert.JSONEq(t, `{"personId":"p01","newName":"Ann","at":"2026-03-01T12:00:00Z"}`, string(envelope.Payload))
	assert.JSONEq(t, `{"actor":"alice"}`, string(envelope.Metadata))
}

func Test_Kafka_Publish_Leaves_The_Key_Empty_Without_Aggregate_ID(t *testing.T) {
	producer := &producerFake{}
	sink, err := eventsink.NewKafka(producer, "misc")
	require.NoError(t, err)

	require.NoError(t, sink.Publish(t.Context(), otherEvent{}))

	require.Len(t, producer.records, 1)
	assert.Nil(t, producer.records[0].Key)
}

func Test_Kafka_Publish_Without_Events_Produces_Nothing(t *testing.T) {
	producer := &producerFake{}
	sink, err := eventsink.NewKafka(producer, "people")
	require.NoError(t, err)

	require.NoError(t, sink.Publish(t.Context()))

	assert.Empty(t, producer.records)
}

func Test_Kafka_Publish_Reports_Produce_Failures(t *testing.T) {
	brokerErr := errors.New("not enough replicas")
	logger, logSpy := spies.NewLogger()
	metrics := spies.NewMetricsCollectorSpy()
	sink, err := eventsink.NewKafka(&producerFake{err: brokerErr}, "people",
		eventsink.WithLogger(logger),
		eventsink.WithMetrics(metrics),
	)
	require.NoError(t, err)

	err = sink.Publish(t.Context(), fixtures.PersonRenamed{PersonID: "p01"})

	require.ErrorIs(t, err, eventsink.ErrProduceFailed)
	assert.ErrorIs(t, err, brokerErr)
	assert.True(t, logSpy.HasLog(slog.LevelError, "eventsink: publishing events failed").
		WithAttributeValue("sink", "kafka").
		Assert())
	assert.True(t, metrics.HasCounterRecord("eventsink_publish_errors_total", map[string]string{
		"sink":       "kafka",
		"event_type": "PersonRenamed",
	}))
}
