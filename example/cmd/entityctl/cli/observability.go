package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/oteladapters"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/promadapters"
)

const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsOTel       = "otel"

	instrumentationName = "entityctl"
)

var validMetrics = []string{MetricsNone, MetricsPrometheus, MetricsOTel}

// observability bundles the collectors handed to the library and a way to report what they saw.
type observability struct {
	metrics  entitystore.MetricsCollector
	tracing  entitystore.TracingCollector
	report   func(ctx context.Context, w io.Writer) error
	shutdown func(ctx context.Context) error
}

func newObservability(kind string) (*observability, error) {
	switch kind {
	case MetricsNone:
		return &observability{
			report:   func(context.Context, io.Writer) error { return nil },
			shutdown: func(context.Context) error { return nil },
		}, nil

	case MetricsPrometheus:
		registry := prometheus.NewRegistry()

		return &observability{
			metrics:  promadapters.NewMetricsCollector(registry, promadapters.WithNamespace(instrumentationName)),
			report:   func(_ context.Context, w io.Writer) error { return writePrometheus(registry, w) },
			shutdown: func(context.Context) error { return nil },
		}, nil

	case MetricsOTel:
		reader := sdkmetric.NewManualReader()
		meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		tracerProvider := sdktrace.NewTracerProvider()

		return &observability{
			metrics: oteladapters.NewMetricsCollector(meterProvider.Meter(instrumentationName)),
			tracing: oteladapters.NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
			report: func(ctx context.Context, w io.Writer) error {
				return writeOTel(ctx, reader, w)
			},
			shutdown: func(ctx context.Context) error {
				return errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
			},
		}, nil

	default:
		return nil, fmt.Errorf("invalid metrics backend %q: must be one of %v", kind, validMetrics)
	}
}

func writePrometheus(gatherer prometheus.Gatherer, w io.Writer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return err
		}
	}

	return nil
}

// writeOTel prints one line per instrument with the number of its data points.
func writeOTel(ctx context.Context, reader sdkmetric.Reader, w io.Writer) error {
	var collected metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &collected); err != nil {
		return err
	}

	var lines []string
	for _, scope := range collected.ScopeMetrics {
		for _, m := range scope.Metrics {
			lines = append(lines, fmt.Sprintf("metric %s points=%d", m.Name, dataPoints(m.Data)))
		}
	}

	slices.Sort(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

func dataPoints(data metricdata.Aggregation) int {
	switch d := data.(type) {
	case metricdata.Histogram[float64]:
		return len(d.DataPoints)
	case metricdata.Sum[int64]:
		return len(d.DataPoints)
	case metricdata.Gauge[float64]:
		return len(d.DataPoints)
	default:
		return 0
	}
}
