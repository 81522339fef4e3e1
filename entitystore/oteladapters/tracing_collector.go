package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

const attrStatus = "entitystore.status"

// TracingCollector starts OpenTelemetry spans for entity store operations.
type TracingCollector struct {
	tracer trace.Tracer
}

var _ entitystore.TracingCollector = (*TracingCollector)(nil)

func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, entitystore.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributes(attrs)...))

	return spanCtx, &Span{span: span}
}

// FinishSpan ends spans started by this collector and ignores any other SpanContext.
func (t *TracingCollector) FinishSpan(spanCtx entitystore.SpanContext, status string, attrs map[string]string) {
	s, ok := spanCtx.(*Span)
	if !ok {
		return
	}

	s.span.SetAttributes(attributes(attrs)...)
	s.SetStatus(status)
	s.span.End()
}

// Span adapts a trace.Span to entitystore.SpanContext.
type Span struct {
	span trace.Span
}

var _ entitystore.SpanContext = (*Span)(nil)

// SetStatus maps entitystore.StatusSuccess to codes.Ok and entitystore.StatusError to codes.Error.
// Any other status is recorded as an attribute.
func (s *Span) SetStatus(status string) {
	switch status {
	case entitystore.StatusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case entitystore.StatusError:
		s.span.SetStatus(codes.Error, "entity store operation failed")
	default:
		s.span.SetAttributes(attributes(map[string]string{attrStatus: status})...)
	}
}

func (s *Span) AddAttribute(key, value string) {
	s.span.SetAttributes(attributes(map[string]string{key: value})...)
}
