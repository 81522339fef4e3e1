// Package oteladapters implements the entitystore observability interfaces on OpenTelemetry:
// MetricsCollector on a metric.Meter, TracingCollector on a trace.Tracer, and loggers writing
// OpenTelemetry log records correlated with the active span.
package oteladapters
