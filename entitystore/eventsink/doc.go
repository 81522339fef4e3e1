// Package eventsink provides entitystore.EventPublisher implementations for the domain events
// behavior: InProcess delivers events to handlers in the same process, Kafka produces them as
// records to a topic.
package eventsink
