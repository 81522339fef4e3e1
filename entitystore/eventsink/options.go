package eventsink

import (
	"context"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	logMsgPublished     = "eventsink: events published"
	logMsgPublishFailed = "eventsink: publishing events failed"

	logAttrSink       = "sink"
	logAttrEventType  = "event_type"
	logAttrEventCount = "event_count"
	logAttrError      = "error"

	metricPublished     = "eventsink_events_published_total"
	metricPublishErrors = "eventsink_publish_errors_total"

	labelSink      = "sink"
	labelEventType = "event_type"
)

type settings struct {
	logger           entitystore.Logger
	contextualLogger entitystore.ContextualLogger
	metricsCollector entitystore.MetricsCollector
}

// Option defines a functional option for configuring a sink.
type Option func(*settings) error

// WithLogger sets the logger.
func WithLogger(logger entitystore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over WithLogger.
func WithContextualLogger(logger entitystore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the collector receiving published and failed event counters.
func WithMetrics(collector entitystore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

func applyOptions(options []Option) (settings, error) {
	var s settings

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}

func (s settings) debug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s settings) error(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func (s settings) published(ctx context.Context, sink string, events []entitystore.DomainEvent) {
	for _, event := range events {
		entitystore.IncrementCounter(ctx, s.metricsCollector, metricPublished, map[string]string{
			labelSink:      sink,
			labelEventType: event.EventType(),
		})
	}

	s.debug(ctx, logMsgPublished, logAttrSink, sink, logAttrEventCount, len(events))
}

func (s settings) failed(ctx context.Context, sink, eventType string, err error) {
	entitystore.IncrementCounter(ctx, s.metricsCollector, metricPublishErrors, map[string]string{
		labelSink:      sink,
		labelEventType: eventType,
	})

	s.error(ctx, logMsgPublishFailed, logAttrSink, sink, logAttrEventType, eventType, logAttrError, err.Error())
}
