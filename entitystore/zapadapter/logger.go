// Package zapadapter lets a *zap.SugaredLogger serve as entitystore.Logger and
// entitystore.ContextualLogger.
package zapadapter

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const (
	fieldActor   = "actor"
	fieldTraceID = "trace_id"
	fieldSpanID  = "span_id"
)

// Logger forwards messages and their key value pairs to the sugared logger. The context-aware
// methods add the actor and, inside a recording span, the trace and span id.
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	_ entitystore.Logger           = (*Logger)(nil)
	_ entitystore.ContextualLogger = (*Logger)(nil)
)

func New(logger *zap.Logger) *Logger {
	return &Logger{sugar: logger.Sugar()}
}

func NewSugared(sugar *zap.SugaredLogger) *Logger {
	return &Logger{sugar: sugar}
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Debugw(msg, withContext(ctx, args)...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Infow(msg, withContext(ctx, args)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Warnw(msg, withContext(ctx, args)...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Errorw(msg, withContext(ctx, args)...)
}

func withContext(ctx context.Context, args []any) []any {
	fields := make([]any, 0, len(args)+6)
	fields = append(fields, args...)
	fields = append(fields, fieldActor, entitystore.ActorFrom(ctx))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, fieldTraceID, sc.TraceID().String(), fieldSpanID, sc.SpanID().String())
	}

	return fields
}
