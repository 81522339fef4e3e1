package sqlengine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	logMsgSQLExecuted         = "sqlengine: executed sql for: "
	logMsgOperation           = "sqlengine: "
	logMsgDBQueryFailed       = "sqlengine: database query failed"
	logMsgDBExecFailed        = "sqlengine: database execution failed"
	logMsgBuildQueryFailed    = "sqlengine: building statement failed"
	logMsgCloseRowsFailed     = "sqlengine: closing database rows failed"
	logMsgScanRowFailed       = "sqlengine: scanning database row failed"
	logMsgConcurrencyConflict = "concurrency conflict detected"

	logAttrError      = "error"
	logAttrQuery      = "query"
	logAttrTable      = "table"
	logAttrDurationMS = "duration_ms"
	logAttrRowCount   = "row_count"
	logAttrEntityID   = "entity_id"

	metricStatementDuration    = "sqlengine_statement_duration_seconds"
	metricOperationDuration    = "sqlengine_operation_duration_seconds"
	metricRowsReturned         = "sqlengine_rows_returned"
	metricDatabaseErrors       = "sqlengine_database_errors_total"
	metricConcurrencyConflicts = "sqlengine_concurrency_conflicts_total"

	spanNamePrefix    = "sqlengine."
	spanAttrOperation = "operation"
	spanAttrTable     = "table"
	spanAttrErrorType = "error_type"
	spanAttrDuration  = "duration_ms"
	labelStatus       = "status"
)

// instrumentation bundles the observability settings shared by Provider and Outbox.
type instrumentation struct {
	table            string
	logger           entitystore.Logger
	contextualLogger entitystore.ContextualLogger
	metricsCollector entitystore.MetricsCollector
	tracingCollector entitystore.TracingCollector
}

func newInstrumentation(table string, s settings) instrumentation {
	return instrumentation{
		table:            table,
		logger:           s.logger,
		contextualLogger: s.contextualLogger,
		metricsCollector: s.metricsCollector,
		tracingCollector: s.tracingCollector,
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (in instrumentation) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrTable, in.table, logAttrDurationMS, entitystore.ToMilliseconds(duration), logAttrQuery, sqlQuery}

	if in.contextualLogger != nil {
		in.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
		return
	}

	if in.logger != nil {
		in.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (in instrumentation) logOperation(ctx context.Context, action string, args ...any) {
	args = append([]any{logAttrTable, in.table}, args...)

	if in.contextualLogger != nil {
		in.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if in.logger != nil {
		in.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level.
func (in instrumentation) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error(), logAttrTable, in.table}, args...)

	if in.contextualLogger != nil {
		in.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if in.logger != nil {
		in.logger.Error(message, allArgs...)
	}
}

func (in instrumentation) logWarn(ctx context.Context, message string, err error) {
	if in.contextualLogger != nil {
		in.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error(), logAttrTable, in.table)
		return
	}

	if in.logger != nil {
		in.logger.Warn(message, logAttrError, err.Error(), logAttrTable, in.table)
	}
}

func (in instrumentation) labels(op entitystore.Operation, status string) map[string]string {
	return map[string]string{
		spanAttrOperation: string(op),
		spanAttrTable:     in.table,
		labelStatus:       status,
	}
}

// recordErrorMetrics counts failed statements by error type.
func (in instrumentation) recordErrorMetrics(ctx context.Context, op entitystore.Operation, errorType string) {
	labels := in.labels(op, entitystore.StatusError)
	labels[spanAttrErrorType] = errorType
	entitystore.IncrementCounter(ctx, in.metricsCollector, metricDatabaseErrors, labels)
}

func (in instrumentation) recordConcurrencyConflict(ctx context.Context, op entitystore.Operation) {
	entitystore.IncrementCounter(ctx, in.metricsCollector, metricConcurrencyConflicts, map[string]string{
		spanAttrOperation: string(op),
		spanAttrTable:     in.table,
	})
}

// instrument runs fn inside a span and records the operation duration.
func (in instrumentation) instrument(ctx context.Context, op entitystore.Operation, fn func(ctx context.Context) error) error {
	var span entitystore.SpanContext
	if in.tracingCollector != nil {
		ctx, span = in.tracingCollector.StartSpan(ctx, spanNamePrefix+string(op), map[string]string{
			spanAttrOperation: string(op),
			spanAttrTable:     in.table,
		})
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := entitystore.StatusSuccess
	if err != nil {
		status = entitystore.StatusError
	}

	entitystore.RecordDuration(ctx, in.metricsCollector, metricOperationDuration, duration, in.labels(op, status))

	if in.tracingCollector != nil && span != nil {
		attrs := map[string]string{spanAttrDuration: strconv.FormatFloat(entitystore.ToMilliseconds(duration), 'f', 3, 64)}
		if err != nil {
			attrs[spanAttrErrorType] = errorType(err)
		}

		in.tracingCollector.FinishSpan(span, status, attrs)
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
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrBuildingQueryFailed):
		return "build_query"
	case errors.Is(err, ErrScanningRowFailed):
		return "scan"
	default:
		return "database"
	}
}
