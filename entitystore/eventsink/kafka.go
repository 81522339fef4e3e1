package eventsink

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrEmptyTopic = errors.New("kafka topic must not be empty")
var ErrNilProducer = errors.New("kafka producer must not be nil")
var ErrProduceFailed = errors.New("producing kafka records failed")

const (
	sinkKafka = "kafka"

	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"

	metadataKeyActor = "actor"
)

// Producer is the part of *kgo.Client the Kafka sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka produces every event as one record to a topic. The record key is the aggregate id when the
// event has one, so that events of one entity stay in order within a partition.
type Kafka struct {
	producer Producer
	topic    string
	settings
}

var _ entitystore.EventPublisher = (*Kafka)(nil)

// Envelope is the JSON value of a produced record.
type Envelope struct {
	EventID     string              `json:"eventId"`
	EventType   string              `json:"eventType"`
	AggregateID string              `json:"aggregateId,omitempty"`
	OccurredAt  time.Time           `json:"occurredAt"`
	Payload     jsoniter.RawMessage `json:"payload"`
	Metadata    jsoniter.RawMessage `json:"metadata"`
}

func NewKafka(producer Producer, topic string, options ...Option) (*Kafka, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	if topic == "" {
		return nil, ErrEmptyTopic
	}

	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &Kafka{producer: producer, topic: topic, settings: s}, nil
}

// NewKafkaClient creates a franz-go client producing to topic by default.
func NewKafkaClient(brokers []string, topic string, opts ...kgo.Opt) (*kgo.Client, error) {
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)

	return kgo.NewClient(opts...)
}

// EnsureTopic creates topic unless it exists.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	response, err := kadm.NewClient(client).CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err == nil {
		err = response.Err
	}

	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return err
	}

	return nil
}

// Publish produces all events and waits for the broker acknowledgements.
func (k *Kafka) Publish(ctx context.Context, events ...entitystore.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	metadata := map[string]string{metadataKeyActor: entitystore.ActorFrom(ctx)}
	records := make([]*kgo.Record, 0, len(events))

	for _, event := range events {
		record, err := k.record(event, metadata)
		if err != nil {
			k.failed(ctx, sinkKafka, event.EventType(), err)
			return err
		}

		records = append(records, record)
	}

	if err := k.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		k.failed(ctx, sinkKafka, events[0].EventType(), err)
		return errors.Join(ErrProduceFailed, err)
	}

	k.published(ctx, sinkKafka, events)

	return nil
}

func (k *Kafka) record(event entitystore.DomainEvent, metadata map[string]string) (*kgo.Record, error) {
	storable, err := entitystore.StorableEventFromDomainEvent(event, metadata)
	if err != nil {
		return nil, err
	}

	value, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(Envelope{
		EventID:     storable.EventID.String(),
		EventType:   storable.EventType,
		AggregateID: storable.AggregateID,
		OccurredAt:  storable.OccurredAt,
		Payload:     storable.PayloadJSON,
		Metadata:    storable.MetadataJSON,
	})
	if err != nil {
		return nil, errors.Join(entitystore.ErrEventSerializationFailed, err)
	}

	record := &kgo.Record{
		Topic:     k.topic,
		Value:     value,
		Timestamp: storable.OccurredAt,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(storable.EventType)},
			{Key: HeaderEventID, Value: []byte(storable.EventID.String())},
		},
	}

	if storable.AggregateID != "" {
		record.Key = []byte(storable.AggregateID)
	}

	return record, nil
}
