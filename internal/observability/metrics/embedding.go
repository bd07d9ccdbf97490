package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EmbeddingMetrics contains Prometheus metrics for model inference.
type EmbeddingMetrics struct {
	registry *prometheus.Registry

	inferenceDuration prometheus.Histogram

	collectors []prometheus.Collector
}

// NewEmbeddingMetrics creates and registers new embedding metrics.
func NewEmbeddingMetrics(registry *prometheus.Registry) (*EmbeddingMetrics, error) {
	m := &EmbeddingMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EmbeddingMetrics) initMetrics() error {
	m.inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_inference_seconds",
			Help:    "Time taken for one embedding model inference",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
		},
	)

	m.collectors = []prometheus.Collector{
		m.inferenceDuration,
	}

	return nil
}

// Describe implements the Collector interface
func (m *EmbeddingMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EmbeddingMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordInferenceDuration records how long one model call took, in seconds.
func (m *EmbeddingMetrics) RecordInferenceDuration(seconds float64) {
	m.inferenceDuration.Observe(seconds)
}
