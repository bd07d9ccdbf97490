package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics contains Prometheus metrics for search orchestration.
type SearchMetrics struct {
	registry *prometheus.Registry

	searchesTotal     *prometheus.CounterVec
	laneDuration      *prometheus.HistogramVec
	laneFailuresTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewSearchMetrics creates and registers new search metrics.
func NewSearchMetrics(registry *prometheus.Registry) (*SearchMetrics, error) {
	m := &SearchMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SearchMetrics) initMetrics() error {
	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searches_total",
			Help: "Total number of search requests by mode",
		},
		[]string{"mode"},
	)

	m.laneDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_lane_seconds",
			Help:    "Time spent in each search lane",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
		},
		[]string{"lane"},
	)

	m.laneFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_lane_failures_total",
			Help: "Total number of search lane failures",
		},
		[]string{"lane", "reason"}, // reason: timeout, error
	)

	m.collectors = []prometheus.Collector{
		m.searchesTotal,
		m.laneDuration,
		m.laneFailuresTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *SearchMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SearchMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordSearch counts one search request.
func (m *SearchMetrics) RecordSearch(mode string) {
	m.searchesTotal.WithLabelValues(mode).Inc()
}

// RecordLaneDuration records how long a lane ran, in seconds.
func (m *SearchMetrics) RecordLaneDuration(lane string, seconds float64) {
	m.laneDuration.WithLabelValues(lane).Observe(seconds)
}

// RecordLaneFailure counts one lane failure with its reason.
func (m *SearchMetrics) RecordLaneFailure(lane, reason string) {
	m.laneFailuresTotal.WithLabelValues(lane, reason).Inc()
}
