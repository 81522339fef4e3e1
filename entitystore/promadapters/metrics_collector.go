// Package promadapters implements entitystore.MetricsCollector on the Prometheus client library.
package promadapters

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// MetricsCollector registers one vector per metric name on first use: a HistogramVec in seconds for
// durations, a CounterVec for counters and a GaugeVec for values. The label names of a metric are
// fixed by its first use. Later calls fill missing labels with "" and drop unknown ones.
//
// Metrics that cannot be registered, for example because the name is taken by a different kind of
// collector, are skipped silently.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]vec[*prometheus.HistogramVec]
	counters   map[string]vec[*prometheus.CounterVec]
	gauges     map[string]vec[*prometheus.GaugeVec]
}

var _ entitystore.MetricsCollector = (*MetricsCollector)(nil)

type vec[V prometheus.Collector] struct {
	collector V
	labels    []string
}

// Option defines a functional option for configuring MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace and an underscore.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// WithBuckets sets the histogram buckets in seconds. Default is prometheus.DefBuckets.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]vec[*prometheus.HistogramVec]),
		counters:   make(map[string]vec[*prometheus.CounterVec]),
		gauges:     make(map[string]vec[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

func (m *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	v, ok := lookup(m, m.histograms, name, labels, func(labelNames []string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "Duration of entity store work in seconds.",
			Buckets:   m.buckets,
		}, labelNames)
	})
	if !ok {
		return
	}

	v.collector.WithLabelValues(values(v.labels, labels)...).Observe(duration.Seconds())
}

func (m *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	v, ok := lookup(m, m.counters, name, labels, func(labelNames []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "Count of entity store events.",
		}, labelNames)
	})
	if !ok {
		return
	}

	v.collector.WithLabelValues(values(v.labels, labels)...).Inc()
}

func (m *MetricsCollector) RecordValue(name string, value float64, labels map[string]string) {
	v, ok := lookup(m, m.gauges, name, labels, func(labelNames []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "Last value reported by the entity store.",
		}, labelNames)
	})
	if !ok {
		return
	}

	v.collector.WithLabelValues(values(v.labels, labels)...).Set(value)
}

func lookup[V prometheus.Collector](
	m *MetricsCollector,
	cache map[string]vec[V],
	name string,
	labels map[string]string,
	create func(labelNames []string) V,
) (vec[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := cache[name]; ok {
		return existing, true
	}

	labelNames := make([]string, 0, len(labels))
	for key := range labels {
		labelNames = append(labelNames, key)
	}
	sort.Strings(labelNames)

	collector := create(labelNames)

	if err := m.registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return vec[V]{}, false
		}

		existing, ok := already.ExistingCollector.(V)
		if !ok {
			return vec[V]{}, false
		}

		collector = existing
	}

	v := vec[V]{collector: collector, labels: labelNames}
	cache[name] = v

	return v, true
}

func values(labelNames []string, labels map[string]string) []string {
	vs := make([]string, len(labelNames))
	for i, name := range labelNames {
		vs[i] = labels[name]
	}

	return vs
}
