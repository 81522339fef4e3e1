package mongoengine

import "github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"

type settings struct {
	logger           entitystore.Logger
	contextualLogger entitystore.ContextualLogger
	metricsCollector entitystore.MetricsCollector
	tracingCollector entitystore.TracingCollector
}

// Option defines a functional option for configuring a Provider.
type Option func(*settings) error

// WithLogger sets the logger. Filters are logged at debug level, failures at error level.
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

// WithMetrics sets the collector receiving operation durations and errors.
func WithMetrics(collector entitystore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the collector receiving one span per provider operation.
func WithTracing(collector entitystore.TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}
