package embedding

import (
	"context"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/observability/metrics"
)

var (
	embedLogger      *slog.Logger
	embedLevelVar    = new(slog.LevelVar)
	closeEmbedLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "embedding.log")
	embedLevelVar.Set(slog.LevelInfo)

	embedLogger, closeEmbedLogger, err = logging.NewFileLogger(logFilePath, "embedding", embedLevelVar)
	if err != nil {
		log.Printf("Failed to initialize embedding file logger at %s: %v. Using default logger.", logFilePath, err)
		embedLogger = slog.Default().With("service", "embedding")
		closeEmbedLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeEmbedLogger != nil {
		return closeEmbedLogger()
	}
	return nil
}

// Embedder turns one window of 48 kHz samples into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, samples []float32) ([]float32, error)
	ModelName() string
	Dim() int
}

// EmbeddedChunk pairs a chunk's placement in the track with its vector.
type EmbeddedChunk struct {
	Vector      []float32
	OffsetSec   float64
	Index       int
	DurationSec float64
}

// Service guards an Embedder behind a single inference slot so embedding
// work from ingest and search cannot run the model concurrently. A nil
// Service or nil embedder means the vibe lane is disabled.
type Service struct {
	embedder Embedder
	gate     *semaphore.Weighted
	metrics  *metrics.EmbeddingMetrics
}

// NewService wraps an embedder with the inference slot.
func NewService(embedder Embedder) *Service {
	return &Service{
		embedder: embedder,
		gate:     semaphore.NewWeighted(1),
	}
}

// SetMetrics attaches inference metrics. Must be called before the service
// handles concurrent work.
func (s *Service) SetMetrics(m *metrics.EmbeddingMetrics) {
	if s != nil {
		s.metrics = m
	}
}

// Enabled reports whether an embedding model is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.embedder != nil
}

// ModelName returns the configured model identifier, or an empty string
// when embedding is disabled.
func (s *Service) ModelName() string {
	if !s.Enabled() {
		return ""
	}
	return s.embedder.ModelName()
}

// Dim returns the embedding dimensionality, or 0 when disabled.
func (s *Service) Dim() int {
	if !s.Enabled() {
		return 0
	}
	return s.embedder.Dim()
}

// Embed runs one inference while holding the inference slot. The slot is
// held only for the model call itself.
func (s *Service) Embed(ctx context.Context, samples []float32) ([]float32, error) {
	if !s.Enabled() {
		return nil, errors.Newf("embedding model not configured").
			Component("embedding").
			Category(errors.CategoryModelInit).
			Build()
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, errors.New(err).
			Component("embedding").
			Category(errors.CategoryTimeout).
			Context("operation", "acquire_inference_slot").
			Build()
	}
	defer s.gate.Release(1)

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, samples)
	if err == nil && s.metrics != nil {
		s.metrics.RecordInferenceDuration(time.Since(start).Seconds())
	}
	return vector, err
}

// EmbedChunks embeds chunks in order, acquiring the inference slot per
// chunk so search queries are not starved behind a long ingest. The
// first inference failure aborts the remaining chunks.
func (s *Service) EmbedChunks(ctx context.Context, chunks []Chunk) ([]EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]EmbeddedChunk, 0, len(chunks))
	for i := range chunks {
		vector, err := s.Embed(ctx, chunks[i].Samples)
		if err != nil {
			return nil, errors.New(err).
				Component("embedding").
				Category(errors.CategoryModelInference).
				Context("chunk_index", chunks[i].Index).
				Context("chunk_count", len(chunks)).
				Build()
		}
		out = append(out, EmbeddedChunk{
			Vector:      vector,
			OffsetSec:   chunks[i].OffsetSec,
			Index:       chunks[i].Index,
			DurationSec: chunks[i].DurationSec,
		})
	}

	embedLogger.Debug("generated chunk embeddings", "chunk_count", len(out))
	return out, nil
}
