package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the ingest pipeline.
type IngestMetrics struct {
	registry *prometheus.Registry

	ingestsTotal        *prometheus.CounterVec
	ingestDuration      prometheus.Histogram
	pointsUpsertedTotal prometheus.Counter

	collectors []prometheus.Collector
}

// NewIngestMetrics creates and registers new ingest metrics.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() error {
	m.ingestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingests_total",
			Help: "Total number of ingest attempts by outcome",
		},
		[]string{"status"}, // status: ingested, duplicate, skipped, error
	)

	m.ingestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_seconds",
			Help:    "Time taken to ingest one file end to end",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15), // 10ms to ~5m
		},
	)

	m.pointsUpsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vector_points_upserted_total",
			Help: "Total number of chunk vectors written to the vector store",
		},
	)

	m.collectors = []prometheus.Collector{
		m.ingestsTotal,
		m.ingestDuration,
		m.pointsUpsertedTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordIngest counts one pipeline run by outcome.
func (m *IngestMetrics) RecordIngest(status string) {
	m.ingestsTotal.WithLabelValues(status).Inc()
}

// RecordIngestDuration records how long one pipeline run took, in seconds.
func (m *IngestMetrics) RecordIngestDuration(seconds float64) {
	m.ingestDuration.Observe(seconds)
}

// RecordPointsUpserted counts chunk vectors written to the vector store.
func (m *IngestMetrics) RecordPointsUpserted(count int) {
	m.pointsUpsertedTotal.Add(float64(count))
}
