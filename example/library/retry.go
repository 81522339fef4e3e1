package library

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3

	metricRetryDelay         = "library_retry_delay_seconds"
	metricRetries            = "library_retries_total"
	metricMaxRetriesReached  = "library_max_retries_reached_total"
	labelCommand             = "command"
	labelAttempt             = "attempt"
	labelErrorType           = "error_type"
	errorTypeNone            = "none"
	errorTypeConflict        = "concurrency_conflict"
	errorTypeContextCanceled = "context_canceled"
	errorTypeDeadline        = "context_deadline_exceeded"
	errorTypeOther           = "other"
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryOption configures RetryOnConflict.
type RetryOption func(*retryConfig) error

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	metrics      entitystore.MetricsCollector
	command      string
}

// WithMaxAttempts sets the number of attempts including the first one.
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		c.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the delay before the second attempt, it doubles for every further one.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		c.baseDelay = delay

		return nil
	}
}

// WithJitterFactor adds up to factor times the delay at random.
func WithJitterFactor(factor float64) RetryOption {
	return func(c *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		c.jitterFactor = factor

		return nil
	}
}

func withRetryMetrics(collector entitystore.MetricsCollector, command string) RetryOption {
	return func(c *retryConfig) error {
		c.metrics = collector
		c.command = command

		return nil
	}
}

// RetryOnConflict runs fn until it succeeds, fails with an error other than
// entitystore.ErrConcurrencyConflict, or the attempts are used up.
//
// Default schedule: 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms plus up to 30% jitter.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // jitter only
			delay += time.Duration(jitter)

			entitystore.RecordDuration(ctx, config.metrics, metricRetryDelay, delay, map[string]string{
				labelCommand: config.command,
				labelAttempt: strconv.Itoa(attempt),
			})

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, entitystore.ErrConcurrencyConflict) {
			return lastErr
		}

		if attempt < config.maxAttempts-1 {
			entitystore.IncrementCounter(ctx, config.metrics, metricRetries, map[string]string{
				labelCommand:   config.command,
				labelAttempt:   strconv.Itoa(attempt + 1),
				labelErrorType: errorType(lastErr),
			})
		}
	}

	entitystore.IncrementCounter(ctx, config.metrics, metricMaxRetriesReached, map[string]string{
		labelCommand:   config.command,
		labelErrorType: errorType(lastErr),
	})

	return lastErr
}

func errorType(err error) string {
	switch {
	case err == nil:
		return errorTypeNone
	case errors.Is(err, entitystore.ErrConcurrencyConflict):
		return errorTypeConflict
	case errors.Is(err, context.Canceled):
		return errorTypeContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeDeadline
	default:
		return errorTypeOther
	}
}
