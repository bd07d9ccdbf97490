// Package search runs audio identification queries across two lanes: an
// exact lane matching acoustic fingerprints against the Olaf index, and a
// vibe lane ranking embedding similarity against the vector store. The
// orchestrator coordinates both with per-lane deadlines.
package search

import (
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/logging"
)

var (
	searchLogger      *slog.Logger
	searchLevelVar    = new(slog.LevelVar)
	closeSearchLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "search.log")
	searchLevelVar.Set(slog.LevelInfo)

	searchLogger, closeSearchLogger, err = logging.NewFileLogger(logFilePath, "search", searchLevelVar)
	if err != nil {
		log.Printf("Failed to initialize search file logger at %s: %v. Using default logger.", logFilePath, err)
		searchLogger = slog.Default().With("service", "search")
		closeSearchLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeSearchLogger != nil {
		return closeSearchLogger()
	}
	return nil
}

// TrackInfo is the track summary embedded in match results and listings.
type TrackInfo struct {
	ID              string    `json:"id"`
	Title           *string   `json:"title"`
	Artist          *string   `json:"artist"`
	Album           *string   `json:"album"`
	DurationSeconds float64   `json:"duration_seconds"`
	IngestedAt      time.Time `json:"ingested_at"`
}

// NewTrackInfo projects a track row into its response summary.
func NewTrackInfo(track *datastore.Track) TrackInfo {
	return TrackInfo{
		ID:              track.ID,
		Title:           track.Title,
		Artist:          track.Artist,
		Album:           track.Album,
		DurationSeconds: track.DurationSeconds,
		IngestedAt:      track.IngestedAt,
	}
}

// ExactMatch is one fingerprint identification result.
type ExactMatch struct {
	Track         TrackInfo `json:"track"`
	Confidence    float64   `json:"confidence"`
	OffsetSeconds float64   `json:"offset_seconds"`
	AlignedHashes int       `json:"aligned_hashes"`
}

// VibeMatch is one embedding similarity result.
type VibeMatch struct {
	Track          TrackInfo `json:"track"`
	Similarity     float64   `json:"similarity"`
	EmbeddingModel string    `json:"embedding_model"`
}

// trackReader is the slice of the datastore the lanes use to enrich
// results.
type trackReader interface {
	TracksByIDs(ids []string) (map[string]datastore.Track, error)
}
