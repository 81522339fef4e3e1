package entitystore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var ErrInvalidPayloadJSON = errors.New("payload json is not valid")
var ErrInvalidMetadataJSON = errors.New("metadata json is not valid")
var ErrEventSerializationFailed = errors.New("domain event could not be serialized")

// StorableEvent is the scalar form of a domain event, used by event sinks that leave the process
// (outbox table, message broker). It is agnostic of how domain events are implemented.
type StorableEvent struct {
	EventID      uuid.UUID
	EventType    string
	AggregateID  string
	OccurredAt   time.Time
	PayloadJSON  []byte
	MetadataJSON []byte
}

// BuildStorableEvent is a factory method for StorableEvent.
// Returns an error if payloadJSON or metadataJSON are not valid JSON.
func BuildStorableEvent(
	eventID uuid.UUID,
	eventType string,
	aggregateID string,
	occurredAt time.Time,
	payloadJSON []byte,
	metadataJSON []byte,
) (StorableEvent, error) {
	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	if !jsoniter.ConfigFastest.Valid(metadataJSON) {
		return StorableEvent{}, ErrInvalidMetadataJSON
	}

	return StorableEvent{
		EventID:      eventID,
		EventType:    eventType,
		AggregateID:  aggregateID,
		OccurredAt:   occurredAt,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
	}, nil
}

// StorableEventFromDomainEvent serializes event with a new time-ordered event id.
// Events implementing AggregateIdentifier keep their aggregate id.
func StorableEventFromDomainEvent(event DomainEvent, metadata map[string]string) (StorableEvent, error) {
	payloadJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		return StorableEvent{}, errors.Join(ErrEventSerializationFailed, err)
	}

	if metadata == nil {
		metadata = map[string]string{}
	}

	metadataJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(metadata)
	if err != nil {
		return StorableEvent{}, errors.Join(ErrEventSerializationFailed, err)
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return StorableEvent{}, errors.Join(ErrEventSerializationFailed, err)
	}

	var aggregateID string
	if identified, ok := event.(AggregateIdentifier); ok {
		aggregateID = identified.AggregateID()
	}

	return BuildStorableEvent(eventID, event.EventType(), aggregateID, event.OccurredAt(), payloadJSON, metadataJSON)
}
