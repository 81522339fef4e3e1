package rediscache

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrEmptyPrefix = errors.New("cache key prefix must not be empty")
var ErrInvalidTTL = errors.New("cache ttl must be positive")
var ErrNilClient = errors.New("redis client must not be nil")
var ErrNilProvider = errors.New("inner provider must not be nil")

const DefaultTTL = 5 * time.Minute

type settings struct {
	prefix           string
	ttl              time.Duration
	logger           entitystore.Logger
	contextualLogger entitystore.ContextualLogger
	metricsCollector entitystore.MetricsCollector
}

// Option defines a functional option for configuring a Provider.
type Option func(*settings) error

// WithPrefix sets the key prefix. It defaults to "entitystore:" followed by the entity type.
func WithPrefix(prefix string) Option {
	return func(s *settings) error {
		if prefix == "" {
			return ErrEmptyPrefix
		}

		s.prefix = prefix

		return nil
	}
}

// WithTTL sets the expiry of cached reads, DefaultTTL otherwise.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl <= 0 {
			return ErrInvalidTTL
		}

		s.ttl = ttl

		return nil
	}
}

// WithLogger sets the logger. Hits and misses are logged at debug level, Redis failures at warn level.
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

// WithMetrics sets the collector receiving hit and miss counters.
func WithMetrics(collector entitystore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}
