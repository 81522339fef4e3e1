package zapadapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/zapadapter"
)

func Test_Logger_Forwards_Levels_And_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zapadapter.New(zap.New(core))

	logger.Debug("sqlengine: running query for: select", "query", "SELECT 1")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("sqlengine: operation failed", "operation", "insert", "row_count", 0)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "sqlengine: operation failed", entries[3].Message)
	assert.Equal(t, map[string]any{"operation": "insert", "row_count": int64(0)}, entries[3].ContextMap())
}

func Test_Logger_Respects_The_Core_Level(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zapadapter.NewSugared(zap.New(core).Sugar())

	logger.Debug("dropped")
	logger.InfoContext(t.Context(), "dropped")
	logger.WarnContext(t.Context(), "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func Test_Logger_Adds_Actor_And_Trace_Fields_From_The_Context(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zapadapter.New(zap.New(core))
	tracer := sdktrace.NewTracerProvider().Tracer("test")

	ctx, span := tracer.Start(entitystore.WithActor(t.Context(), "alice"), "entitystore.update")
	logger.ErrorContext(ctx, "entitystore: operation failed", "operation", "update")
	span.End()

	logger.DebugContext(t.Context(), "outside")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{
		"operation": "update",
		"actor":     "alice",
		"trace_id":  span.SpanContext().TraceID().String(),
		"span_id":   span.SpanContext().SpanID().String(),
	}, entries[0].ContextMap())
	assert.Equal(t, map[string]any{"actor": entitystore.DefaultActor}, entries[1].ContextMap())
}
