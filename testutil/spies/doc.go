// Package spies provides observability test doubles: a slog.Handler, a MetricsCollector and a
// TracingCollector that capture every call for later inspection.
package spies
