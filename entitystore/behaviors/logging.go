package behaviors

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	logMsgOperationSucceeded = "entitystore: operation succeeded"
	logMsgOperationFailed    = "entitystore: operation failed"

	logAttrOperation  = "operation"
	logAttrEntityType = "entity_type"
	logAttrEntityID   = "entity_id"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"

	metricOperationDuration = "entitystore_operation_duration_seconds"
	metricOperationErrors   = "entitystore_operation_errors_total"

	spanNamePrefix    = "entitystore."
	spanAttrErrorKind = "error_kind"
	labelStatus       = "status"
)

// LoggingOptions configures the logging behavior. All collectors are optional.
type LoggingOptions struct {
	Logger           entitystore.Logger
	ContextualLogger entitystore.ContextualLogger
	Metrics          entitystore.MetricsCollector
	Tracing          entitystore.TracingCollector
	Clock            func() time.Time
}

// Logging logs every mutating operation with its outcome and duration, records a duration metric
// and wraps the operation in a span. It never changes the result of an operation.
//
// An instance is bound to one EntityContext, which never runs operations concurrently, so the
// state of the running operation is kept in the behavior itself.
type Logging[T any] struct {
	options    LoggingOptions
	entityType string

	started time.Time
	span    entitystore.SpanContext
}

func NewLogging[T any](options LoggingOptions) *Logging[T] {
	if options.Clock == nil {
		options.Clock = time.Now
	}

	return &Logging[T]{
		options:    options,
		entityType: reflect.TypeFor[T]().String(),
	}
}

func (l *Logging[T]) begin(ctx context.Context, op entitystore.Operation, entity T) {
	l.started = l.options.Clock()
	l.span = nil

	if l.options.Tracing != nil {
		_, l.span = l.options.Tracing.StartSpan(ctx, spanNamePrefix+string(op), map[string]string{
			logAttrOperation:  string(op),
			logAttrEntityType: l.entityType,
			logAttrEntityID:   entitystore.IdentityOf(entity),
		})
	}
}

func (l *Logging[T]) end(ctx context.Context, op entitystore.Operation, entity T, opErr error) {
	duration := l.options.Clock().Sub(l.started)
	status := entitystore.StatusSuccess
	if opErr != nil {
		status = entitystore.StatusError
	}

	args := []any{
		logAttrOperation, string(op),
		logAttrEntityType, l.entityType,
		logAttrEntityID, entitystore.IdentityOf(entity),
		logAttrDurationMS, entitystore.ToMilliseconds(duration),
	}

	if opErr != nil {
		args = append(args, logAttrError, opErr.Error())
		l.logError(ctx, args)
	} else {
		l.logInfo(ctx, args)
	}

	labels := map[string]string{
		logAttrOperation:  string(op),
		logAttrEntityType: l.entityType,
		labelStatus:       status,
	}
	entitystore.RecordDuration(ctx, l.options.Metrics, metricOperationDuration, duration, labels)

	if opErr != nil {
		entitystore.IncrementCounter(ctx, l.options.Metrics, metricOperationErrors, map[string]string{
			logAttrOperation:  string(op),
			logAttrEntityType: l.entityType,
			spanAttrErrorKind: errorKind(opErr),
		})
	}

	if l.options.Tracing != nil && l.span != nil {
		attrs := map[string]string{logAttrDurationMS: strconv.FormatFloat(entitystore.ToMilliseconds(duration), 'f', 3, 64)}
		if opErr != nil {
			attrs[spanAttrErrorKind] = errorKind(opErr)
		}

		l.options.Tracing.FinishSpan(l.span, status, attrs)
		l.span = nil
	}
}

func (l *Logging[T]) logInfo(ctx context.Context, args []any) {
	if l.options.ContextualLogger != nil {
		l.options.ContextualLogger.InfoContext(ctx, logMsgOperationSucceeded, args...)
		return
	}

	if l.options.Logger != nil {
		l.options.Logger.Info(logMsgOperationSucceeded, args...)
	}
}

func (l *Logging[T]) logError(ctx context.Context, args []any) {
	if l.options.ContextualLogger != nil {
		l.options.ContextualLogger.ErrorContext(ctx, logMsgOperationFailed, args...)
		return
	}

	if l.options.Logger != nil {
		l.options.Logger.Error(logMsgOperationFailed, args...)
	}
}

// errorKind classifies err for metric labels and span attributes.
func errorKind(err error) string {
	switch {
	case errors.Is(err, entitystore.ErrValidationFailed):
		return "validation"
	case errors.Is(err, entitystore.ErrNotFound):
		return "not_found"
	case errors.Is(err, entitystore.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, entitystore.ErrConflict):
		return "conflict"
	case errors.Is(err, entitystore.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, entitystore.ErrStorageFailed):
		return "storage"
	default:
		return "other"
	}
}

func (l *Logging[T]) BeforeInsert(ctx context.Context, entity T) error {
	l.begin(ctx, entitystore.OperationInsert, entity)
	return nil
}

func (l *Logging[T]) AfterInsert(ctx context.Context, entity T, opErr error) error {
	l.end(ctx, entitystore.OperationInsert, entity, opErr)
	return nil
}

func (l *Logging[T]) BeforeUpdate(ctx context.Context, entity T) error {
	l.begin(ctx, entitystore.OperationUpdate, entity)
	return nil
}

func (l *Logging[T]) AfterUpdate(ctx context.Context, entity T, opErr error) error {
	l.end(ctx, entitystore.OperationUpdate, entity, opErr)
	return nil
}

func (l *Logging[T]) BeforeUpsert(ctx context.Context, entity T) error {
	l.begin(ctx, entitystore.OperationUpsert, entity)
	return nil
}

func (l *Logging[T]) AfterUpsert(ctx context.Context, entity T, opErr error) error {
	l.end(ctx, entitystore.OperationUpsert, entity, opErr)
	return nil
}

func (l *Logging[T]) BeforeDelete(ctx context.Context, entity T) error {
	l.begin(ctx, entitystore.OperationDelete, entity)
	return nil
}

func (l *Logging[T]) AfterDelete(ctx context.Context, entity T, opErr error) error {
	l.end(ctx, entitystore.OperationDelete, entity, opErr)
	return nil
}
