// Package dedup detects duplicate uploads in two phases: an exact file
// hash against the track table, then an acoustic fingerprint comparison
// that catches re-encodes of already ingested audio.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/chromaprint"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
)

// durationTolerance bounds the candidate window: only tracks whose
// fingerprinted duration is within this fraction of the new clip are
// compared bit by bit.
const durationTolerance = 0.10

var (
	dedupLogger      *slog.Logger
	dedupLevelVar    = new(slog.LevelVar)
	closeDedupLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "dedup.log")
	dedupLevelVar.Set(slog.LevelInfo)

	dedupLogger, closeDedupLogger, err = logging.NewFileLogger(logFilePath, "dedup", dedupLevelVar)
	if err != nil {
		log.Printf("Failed to initialize dedup file logger at %s: %v. Using default logger.", logFilePath, err)
		dedupLogger = slog.Default().With("service", "dedup")
		closeDedupLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeDedupLogger != nil {
		return closeDedupLogger()
	}
	return nil
}

// candidateStore is the slice of the datastore the detector reads.
type candidateStore interface {
	GetTrackIDByHash(hash string) (string, error)
	ChromaprintCandidates(durationSec, tolerance float64) ([]datastore.Track, error)
}

// fingerprinter produces acoustic fingerprints, best effort.
type fingerprinter interface {
	Available() bool
	Generate(ctx context.Context, pcmS16LE []byte, durationSec float64) string
}

// Detector answers "have we seen this audio before" for the ingest
// pipeline.
type Detector struct {
	store     candidateStore
	generator fingerprinter
	threshold float64
}

// NewDetector builds a detector over the track store using the configured
// fpcalc binary and similarity threshold.
func NewDetector(settings *conf.Settings, store candidateStore) *Detector {
	return &Detector{
		store:     store,
		generator: chromaprint.NewGenerator(settings),
		threshold: settings.Chromaprint.Threshold,
	}
}

// HashFile computes the hex SHA-256 of a file without loading it into
// memory.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("dedup").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.New(err).
			Component("dedup").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FindByHash returns the ID of an already ingested track with the same
// file hash, or an empty string.
func (d *Detector) FindByHash(hash string) (string, error) {
	return d.store.GetTrackIDByHash(hash)
}

// FindByContent fingerprints the decoded clip and compares it against
// tracks of similar length. It returns the duplicate's track ID (empty if
// none) and the generated fingerprint so the caller can store it on the
// new row. Fingerprinting failures disable content dedup for this clip
// but never fail ingestion.
func (d *Detector) FindByContent(ctx context.Context, pcm16kF32LE []byte, durationSec float64) (dupID, fingerprint string, err error) {
	if !d.generator.Available() {
		return "", "", nil
	}

	pcmS16 := audio.Float32ToS16LE(audio.BytesToFloat32(pcm16kF32LE))
	fingerprint = d.generator.Generate(ctx, pcmS16, durationSec)
	if fingerprint == "" {
		return "", "", nil
	}

	candidates, err := d.store.ChromaprintCandidates(durationSec, durationTolerance)
	if err != nil {
		return "", "", err
	}

	bestScore := 0.0
	for i := range candidates {
		if candidates[i].Chromaprint == nil {
			continue
		}
		score := chromaprint.Similarity(fingerprint, *candidates[i].Chromaprint)
		if score >= d.threshold && score > bestScore {
			bestScore = score
			dupID = candidates[i].ID
		}
	}

	if dupID != "" {
		dedupLogger.Info("content duplicate detected",
			"duplicate_of", dupID,
			"similarity", bestScore,
			"candidates", len(candidates))
	}
	return dupID, fingerprint, nil
}
