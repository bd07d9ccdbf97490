// exact.go: fingerprint identification lane backed by the Olaf index.
//
// Short clips carry too few fingerprint landmarks for a single reliable
// query, so clips of at most five seconds are queried as three overlapping
// sub-windows whose results are combined by consensus: a track matched in
// two or more windows keeps its full hash count, a single-window match is
// penalized.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/olaf"
)

const (
	// minAlignedHashes is the lowest hash count considered a real match.
	minAlignedHashes = 8

	// strongMatchHashes is the hash count mapped to confidence 1.0.
	strongMatchHashes = 20

	// shortClipThresholdSec is the clip duration at or below which the
	// sub-window strategy applies.
	shortClipThresholdSec = 5.0
)

// subWindows are the (start, stop) second pairs queried independently for
// short clips. Windows are clamped to the clip length.
var subWindows = [][2]float64{
	{0.0, 3.5},
	{0.75, 4.25},
	{1.5, 5.0},
}

// fingerprintIndex is the slice of the Olaf wrapper the lane queries.
type fingerprintIndex interface {
	Query(ctx context.Context, pcm16kF32LE []byte) ([]olaf.Match, error)
}

// ExactLane identifies uploads by fingerprint lookup.
type ExactLane struct {
	index fingerprintIndex
	store trackReader
}

// NewExactLane builds the lane over the Olaf index and the track store.
func NewExactLane(index *olaf.Index, store datastore.Interface) *ExactLane {
	return &ExactLane{index: index, store: store}
}

// scoredCandidate is a track-level candidate before enrichment.
type scoredCandidate struct {
	trackID       string
	alignedHashes int
	offsetSeconds float64
	confidence    float64
}

// Run queries the fingerprint index and returns ranked matches. Clips at
// or below five seconds go through the sub-window consensus path; longer
// clips are queried whole. Empty PCM returns no matches.
func (l *ExactLane) Run(ctx context.Context, pcm16k []byte, maxResults int) ([]ExactMatch, error) {
	if len(pcm16k) == 0 {
		return nil, nil
	}

	clipDuration := audio.PCMDuration(pcm16k, conf.FingerprintSampleRate, audio.BytesPerF32Sample)
	searchLogger.Debug("exact lane query",
		"clip_duration", clipDuration,
		"max_results", maxResults)

	var candidates []scoredCandidate
	var err error
	if clipDuration <= shortClipThresholdSec {
		candidates, err = l.queryWithSubWindows(ctx, pcm16k, clipDuration)
	} else {
		candidates, err = l.queryFullClip(ctx, pcm16k)
	}
	if err != nil {
		return nil, err
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.alignedHashes >= minAlignedHashes {
			c.confidence = normalizeConfidence(c.alignedHashes)
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].confidence != filtered[j].confidence {
			return filtered[i].confidence > filtered[j].confidence
		}
		if filtered[i].alignedHashes != filtered[j].alignedHashes {
			return filtered[i].alignedHashes > filtered[j].alignedHashes
		}
		return filtered[i].trackID < filtered[j].trackID
	})
	if len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}

	return l.enrich(filtered)
}

// queryWithSubWindows queries each overlapping sub-window independently
// and merges the per-window results by consensus.
func (l *ExactLane) queryWithSubWindows(ctx context.Context, pcm16k []byte, clipDuration float64) ([]scoredCandidate, error) {
	windowResults := make([][]olaf.Match, 0, len(subWindows))

	for _, window := range subWindows {
		start, stop := window[0], window[1]
		if stop > clipDuration {
			stop = clipDuration
		}
		if start >= stop {
			windowResults = append(windowResults, nil)
			continue
		}

		windowPCM := audio.ExtractWindow(pcm16k, start, stop, conf.FingerprintSampleRate)
		if len(windowPCM) == 0 {
			windowResults = append(windowResults, nil)
			continue
		}

		matches, err := l.index.Query(ctx, windowPCM)
		if err != nil {
			return nil, err
		}
		windowResults = append(windowResults, matches)
	}

	return consensusScore(windowResults), nil
}

// queryFullClip runs a single query and groups the raw matches by track.
func (l *ExactLane) queryFullClip(ctx context.Context, pcm16k []byte) ([]scoredCandidate, error) {
	matches, err := l.index.Query(ctx, pcm16k)
	if err != nil {
		return nil, err
	}

	trackMatches := make(map[string][]olaf.Match)
	for _, m := range matches {
		ref := strings.TrimSpace(m.ReferencePath)
		trackMatches[ref] = append(trackMatches[ref], m)
	}

	candidates := make([]scoredCandidate, 0, len(trackMatches))
	for ref, ms := range trackMatches {
		if _, err := uuid.Parse(ref); err != nil {
			searchLogger.Warn("non-UUID reference from fingerprint index", "reference", ref)
			continue
		}

		total := 0
		offsets := make([]float64, 0, len(ms))
		for i := range ms {
			total += ms[i].MatchCount
			offsets = append(offsets, ms[i].ReferenceStart)
		}

		candidates = append(candidates, scoredCandidate{
			trackID:       ref,
			alignedHashes: total,
			offsetSeconds: median(offsets),
		})
	}
	return candidates, nil
}

// consensusScore combines per-window match lists into track candidates.
// Tracks hit in two or more distinct windows keep the summed hash count;
// a track seen in only one window is penalized to half, floor one. The
// offset is the median reference start across all of the track's matches.
func consensusScore(windowResults [][]olaf.Match) []scoredCandidate {
	type windowMatch struct {
		window int
		match  olaf.Match
	}

	trackWindows := make(map[string][]windowMatch)
	for windowIdx, matches := range windowResults {
		for _, m := range matches {
			ref := strings.TrimSpace(m.ReferencePath)
			trackWindows[ref] = append(trackWindows[ref], windowMatch{window: windowIdx, match: m})
		}
	}

	candidates := make([]scoredCandidate, 0, len(trackWindows))
	for ref, wms := range trackWindows {
		if _, err := uuid.Parse(ref); err != nil {
			searchLogger.Warn("non-UUID reference from fingerprint index", "reference", ref)
			continue
		}

		windows := make(map[int]struct{}, len(wms))
		total := 0
		offsets := make([]float64, 0, len(wms))
		for _, wm := range wms {
			windows[wm.window] = struct{}{}
			total += wm.match.MatchCount
			offsets = append(offsets, wm.match.ReferenceStart)
		}

		aligned := total
		if len(windows) < 2 {
			aligned = max(total/2, 1)
		}

		candidates = append(candidates, scoredCandidate{
			trackID:       ref,
			alignedHashes: aligned,
			offsetSeconds: median(offsets),
		})
	}
	return candidates
}

// normalizeConfidence maps a hash count onto [0, 1], saturating at
// strongMatchHashes.
func normalizeConfidence(alignedHashes int) float64 {
	if alignedHashes <= 0 {
		return 0.0
	}
	return min(float64(alignedHashes)/strongMatchHashes, 1.0)
}

// median returns the middle value, averaging the central pair for even
// counts. The input slice is sorted in place.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// enrich resolves candidates against the track table, dropping tracks
// deleted since they were indexed.
func (l *ExactLane) enrich(candidates []scoredCandidate) ([]ExactMatch, error) {
	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		ids = append(ids, candidates[i].trackID)
	}

	tracks, err := l.store.TracksByIDs(ids)
	if err != nil {
		return nil, err
	}

	matches := make([]ExactMatch, 0, len(candidates))
	for i := range candidates {
		track, ok := tracks[candidates[i].trackID]
		if !ok {
			searchLogger.Warn("indexed track missing from datastore, dropping match",
				"track_id", candidates[i].trackID)
			continue
		}
		matches = append(matches, ExactMatch{
			Track:         NewTrackInfo(&track),
			Confidence:    candidates[i].confidence,
			OffsetSeconds: candidates[i].offsetSeconds,
			AlignedHashes: candidates[i].alignedHashes,
		})
	}
	return matches, nil
}
