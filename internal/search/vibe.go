// vibe.go: similarity lane embedding the whole query clip and ranking
// indexed chunks from the vector store.
package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/vecstore"
)

// vibeEmbedder is the slice of the embedding service the lane uses.
type vibeEmbedder interface {
	Enabled() bool
	ModelName() string
	Embed(ctx context.Context, samples []float32) ([]float32, error)
}

// chunkSearcher is the slice of the vector store the lane queries.
type chunkSearcher interface {
	QueryNearest(ctx context.Context, vector []float32, limit int) ([]vecstore.Hit, error)
}

// VibeLane finds tracks that sound like the query clip.
type VibeLane struct {
	embedder    vibeEmbedder
	vectors     chunkSearcher
	store       trackReader
	threshold   float64
	searchLimit int
}

// NewVibeLane builds the lane over the embedding service, the vector
// store and the track store.
func NewVibeLane(embedder *embedding.Service, vectors *vecstore.Store, store datastore.Interface, settings *conf.Settings) *VibeLane {
	return &VibeLane{
		embedder:    embedder,
		vectors:     vectors,
		store:       store,
		threshold:   settings.Search.VibeThreshold,
		searchLimit: settings.Qdrant.SearchLimit,
	}
}

// Run embeds the whole clip once, queries the vector store for the
// nearest chunks, aggregates them to track scores and returns matches at
// or above the similarity threshold. Empty PCM returns no matches. A
// missing vector collection counts as zero hits; transport failures fail
// the lane.
func (l *VibeLane) Run(ctx context.Context, pcm48k []byte, maxResults int) ([]VibeMatch, error) {
	if !l.embedder.Enabled() {
		return nil, errors.Newf("embedding model not configured, vibe lane unavailable").
			Component("search").
			Category(errors.CategoryModelInit).
			Build()
	}

	samples := audio.BytesToFloat32(pcm48k)
	if len(samples) == 0 {
		searchLogger.Warn("empty audio input for vibe search")
		return nil, nil
	}

	vector, err := l.embedder.Embed(ctx, samples)
	if err != nil {
		return nil, err
	}

	hits, err := l.vectors.QueryNearest(ctx, vector, l.searchLimit)
	if err != nil {
		if errors.IsNotFound(err) {
			searchLogger.Warn("vector collection missing, vibe lane returns no results")
			return nil, nil
		}
		return nil, err
	}
	if len(hits) == 0 {
		searchLogger.Debug("no chunk hits for vibe search")
		return nil, nil
	}

	chunkHits := make([]ChunkHit, 0, len(hits))
	for i := range hits {
		if _, err := uuid.Parse(hits[i].TrackID); err != nil {
			searchLogger.Warn("invalid track_id payload on vector point",
				"track_id", hits[i].TrackID)
			continue
		}
		chunkHits = append(chunkHits, ChunkHit{
			TrackID:    hits[i].TrackID,
			Score:      hits[i].Score,
			ChunkIndex: hits[i].ChunkIndex,
			OffsetSec:  hits[i].OffsetSec,
		})
	}

	scores := AggregateChunkHits(chunkHits, "")
	filtered := scores[:0]
	for _, s := range scores {
		if s.FinalScore >= l.threshold {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		top := 0.0
		if len(scores) > 0 {
			top = scores[0].FinalScore
		}
		searchLogger.Debug("all vibe results below threshold",
			"threshold", l.threshold,
			"top_score", top)
		return nil, nil
	}
	if len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}

	return l.enrich(filtered)
}

// enrich resolves aggregated scores against the track table in ranking
// order, dropping vector store entries whose track row is gone.
func (l *VibeLane) enrich(scores []TrackScore) ([]VibeMatch, error) {
	ids := make([]string, 0, len(scores))
	for i := range scores {
		ids = append(ids, scores[i].TrackID)
	}

	tracks, err := l.store.TracksByIDs(ids)
	if err != nil {
		return nil, err
	}

	matches := make([]VibeMatch, 0, len(scores))
	for i := range scores {
		track, ok := tracks[scores[i].TrackID]
		if !ok {
			searchLogger.Warn("track in vector store but not in datastore, stale index",
				"track_id", scores[i].TrackID)
			continue
		}
		matches = append(matches, VibeMatch{
			Track:          NewTrackInfo(&track),
			Similarity:     min(scores[i].FinalScore, 1.0),
			EmbeddingModel: l.embedder.ModelName(),
		})
	}
	return matches, nil
}
