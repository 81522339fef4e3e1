package sqlengine

import (
	"errors"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrEmptyOutboxTableName = errors.New("outbox table name must not be empty")

type settings struct {
	dialect          Dialect
	outboxTable      string
	logger           entitystore.Logger
	contextualLogger entitystore.ContextualLogger
	metricsCollector entitystore.MetricsCollector
	tracingCollector entitystore.TracingCollector
}

func defaultSettings() settings {
	return settings{
		dialect:     DialectPostgres,
		outboxTable: defaultOutboxTable,
	}
}

// Option defines a functional option for configuring a Provider or an Outbox.
type Option func(*settings) error

// WithDialect selects the SQL dialect, DialectPostgres by default.
func WithDialect(dialect Dialect) Option {
	return func(s *settings) error {
		if err := dialect.validate(); err != nil {
			return err
		}

		s.dialect = dialect

		return nil
	}
}

// WithOutboxTable sets the table an Outbox writes to.
func WithOutboxTable(name string) Option {
	return func(s *settings) error {
		if name == "" {
			return ErrEmptyOutboxTableName
		}

		s.outboxTable = name

		return nil
	}
}

// WithLogger sets the logger.
// Debug level: SQL statements with execution timing (development use)
// Info level: row counts, durations, concurrency conflicts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: failures that cause operation failures.
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

// WithMetrics sets the collector receiving statement durations, row counts and errors.
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

func applyOptions(options []Option) (settings, error) {
	s := defaultSettings()

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}
