package mongoengine

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	logMsgFilter              = "mongoengine: running filter for: "
	logMsgOperationFailed     = "mongoengine: operation failed"
	logMsgCloseCursorFailed   = "mongoengine: closing cursor failed"
	logMsgConcurrencyConflict = "mongoengine: concurrency conflict detected"

	logAttrError     = "error"
	logAttrFilter    = "filter"
	logAttrOperation = "operation"
	logAttrEntityID  = "entity_id"

	metricOperationDuration = "mongoengine_operation_duration_seconds"
	metricErrors            = "mongoengine_errors_total"

	spanNamePrefix = "mongoengine."
	labelOperation = "operation"
	labelStatus    = "status"
	labelErrorType = "error_type"
)

func (p *Provider[T]) logFilter(ctx context.Context, op entitystore.Operation, filter bson.D) {
	if p.contextualLogger == nil && p.logger == nil {
		return
	}

	rendered := "{}"
	if raw, err := bson.MarshalExtJSON(filter, false, false); err == nil {
		rendered = string(raw)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.DebugContext(ctx, logMsgFilter+string(op), logAttrFilter, rendered)
		return
	}

	p.logger.Debug(logMsgFilter+string(op), logAttrFilter, rendered)
}

func (p *Provider[T]) logError(ctx context.Context, message string, err error, args ...any) {
	args = append([]any{logAttrError, err.Error()}, args...)

	if p.contextualLogger != nil {
		p.contextualLogger.ErrorContext(ctx, message, args...)
		return
	}

	if p.logger != nil {
		p.logger.Error(message, args...)
	}
}

func (p *Provider[T]) logWarn(ctx context.Context, message string, args ...any) {
	if p.contextualLogger != nil {
		p.contextualLogger.WarnContext(ctx, message, args...)
		return
	}

	if p.logger != nil {
		p.logger.Warn(message, args...)
	}
}

// instrument runs fn inside a span, records its duration and counts failures.
func (p *Provider[T]) instrument(ctx context.Context, op entitystore.Operation, fn func(ctx context.Context) error) error {
	var span entitystore.SpanContext
	if p.tracingCollector != nil {
		ctx, span = p.tracingCollector.StartSpan(ctx, spanNamePrefix+string(op), map[string]string{labelOperation: string(op)})
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := entitystore.StatusSuccess
	if err != nil {
		status = entitystore.StatusError
		if !errors.Is(err, entitystore.ErrNotFound) {
			p.logError(ctx, logMsgOperationFailed, err, logAttrOperation, string(op))
		}

		entitystore.IncrementCounter(ctx, p.metricsCollector, metricErrors, map[string]string{
			labelOperation: string(op),
			labelErrorType: errorType(err),
		})
	}

	entitystore.RecordDuration(ctx, p.metricsCollector, metricOperationDuration, duration, map[string]string{
		labelOperation: string(op),
		labelStatus:    status,
	})

	if span != nil {
		attrs := map[string]string{}
		if err != nil {
			attrs[labelErrorType] = errorType(err)
		}

		p.tracingCollector.FinishSpan(span, status, attrs)
	}

	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, entitystore.ErrNotFound):
		return "not_found"
	case errors.Is(err, entitystore.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, entitystore.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, entitystore.ErrUnmappedMember):
		return "unmapped_member"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "database"
	}
}
