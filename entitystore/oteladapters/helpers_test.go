package oteladapters_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// logRecorder is a log.Logger keeping every emitted record.
type logRecorder struct {
	noop.Logger
	records []log.Record
}

func (r *logRecorder) Emit(_ context.Context, record log.Record) {
	r.records = append(r.records, record.Clone())
}

func attrs(record log.Record) map[string]log.Value {
	values := make(map[string]log.Value)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		values[kv.Key] = kv.Value
		return true
	})

	return values
}

// exporterSpy is an sdklog.Exporter keeping every exported record.
type exporterSpy struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *exporterSpy) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}

	return nil
}

func (e *exporterSpy) Shutdown(context.Context) error   { return nil }
func (e *exporterSpy) ForceFlush(context.Context) error { return nil }

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	require.Failf(t, "metric not found", "metric %q was not recorded", name)

	return metricdata.Metrics{}
}
