// aggregate.go: chunk-to-track aggregation for vector store hits.
//
// Converts chunk-level similarity scores into track-level rankings using
// top-K averaging with a diversity bonus: tracks that resemble the query
// at several distinct offsets outrank one-chunk wonders.
package search

import (
	"sort"
)

const (
	// topKPerTrack is how many of a track's best chunk scores feed the
	// base score.
	topKPerTrack = 3

	// diversityWeight scales the bonus for matching at multiple offsets.
	diversityWeight = 0.05

	// offsetsForFullBonus is the number of distinct matching offsets at
	// which the diversity bonus saturates.
	offsetsForFullBonus = 5.0
)

// ChunkHit is a single chunk-level result from the vector store.
type ChunkHit struct {
	TrackID    string
	Score      float64
	ChunkIndex int
	OffsetSec  float64
}

// TrackScore is the aggregated track-level score derived from chunk hits.
// BaseScore, DiversityBonus and TopChunkScores are retained for logging
// and debugging of ranking decisions.
type TrackScore struct {
	TrackID        string
	FinalScore     float64
	BaseScore      float64
	DiversityBonus float64
	ChunkCount     int
	TopChunkScores []float64
}

// AggregateChunkHits groups chunk hits by track and scores each track as
// mean(top-K chunk scores) plus a bonus for matching at distinct offsets.
// excludeTrackID removes one track from the results, used to suppress
// "you searched for X, found X" answers; empty means no exclusion.
// Results are sorted by final score descending.
func AggregateChunkHits(hits []ChunkHit, excludeTrackID string) []TrackScore {
	if len(hits) == 0 {
		return nil
	}

	trackChunks := make(map[string][]ChunkHit)
	for _, hit := range hits {
		trackChunks[hit.TrackID] = append(trackChunks[hit.TrackID], hit)
	}

	results := make([]TrackScore, 0, len(trackChunks))
	for trackID, chunks := range trackChunks {
		if excludeTrackID != "" && trackID == excludeTrackID {
			searchLogger.Debug("excluding track from aggregation", "track_id", trackID)
			continue
		}

		scores := make([]float64, 0, len(chunks))
		uniqueOffsets := make(map[float64]struct{}, len(chunks))
		for i := range chunks {
			scores = append(scores, chunks[i].Score)
			uniqueOffsets[chunks[i].OffsetSec] = struct{}{}
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

		topK := scores
		if len(topK) > topKPerTrack {
			topK = topK[:topKPerTrack]
		}
		sum := 0.0
		for _, s := range topK {
			sum += s
		}
		base := sum / float64(len(topK))
		bonus := min(float64(len(uniqueOffsets))/offsetsForFullBonus, 1.0) * diversityWeight

		results = append(results, TrackScore{
			TrackID:        trackID,
			FinalScore:     base + bonus,
			BaseScore:      base,
			DiversityBonus: bonus,
			ChunkCount:     len(chunks),
			TopChunkScores: topK,
		})
	}

	// Map iteration order is random, so break score ties deterministically.
	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].ChunkCount != results[j].ChunkCount {
			return results[i].ChunkCount > results[j].ChunkCount
		}
		return results[i].TrackID < results[j].TrackID
	})

	return results
}
