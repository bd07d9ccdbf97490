// Package observability provides metrics and monitoring capabilities for the
// Soundprint service.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundprint/soundprint/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the service.
type Metrics struct {
	registry  *prometheus.Registry
	Search    *metrics.SearchMetrics
	Ingest    *metrics.IngestMetrics
	Embedding *metrics.EmbeddingMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors on a private registry. It returns an error if any collector
// fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	searchMetrics, err := metrics.NewSearchMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create search metrics: %w", err)
	}

	ingestMetrics, err := metrics.NewIngestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest metrics: %w", err)
	}

	embeddingMetrics, err := metrics.NewEmbeddingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Search:    searchMetrics,
		Ingest:    ingestMetrics,
		Embedding: embeddingMetrics,
	}, nil
}

// Handler returns the HTTP handler serving the text exposition of the
// service registry. Mounted on the API server at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
