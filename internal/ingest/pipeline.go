// Package ingest turns uploaded audio files into indexed, searchable
// tracks: hash dedup, metadata extraction, dual-rate decode, blob
// storage, content dedup, fingerprint and vector indexing, and finally
// the track row that makes the result visible.
package ingest

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/dedup"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/observability/metrics"
	"github.com/soundprint/soundprint/internal/olaf"
	"github.com/soundprint/soundprint/internal/vecstore"
)

// cleanupTimeout bounds the best-effort rollback that runs after a failed
// track insert. Rollback uses its own context so an aborted upload still
// gets its indexes cleaned.
const cleanupTimeout = 30 * time.Second

// ErrPipelineBusy reports that another ingest holds the single-flight
// lock. The API layer maps it to 429.
var ErrPipelineBusy = errors.NewStd("ingest pipeline busy")

var (
	ingestLogger      *slog.Logger
	ingestLevelVar    = new(slog.LevelVar)
	closeIngestLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	ingestLevelVar.Set(slog.LevelInfo)

	ingestLogger, closeIngestLogger, err = logging.NewFileLogger(logFilePath, "ingest", ingestLevelVar)
	if err != nil {
		log.Printf("Failed to initialize ingest file logger at %s: %v. Using default logger.", logFilePath, err)
		ingestLogger = slog.Default().With("service", "ingest")
		closeIngestLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeIngestLogger != nil {
		return closeIngestLogger()
	}
	return nil
}

// Status classifies the outcome of one ingest attempt.
type Status string

const (
	// StatusIngested means the track was stored and indexed.
	StatusIngested Status = "ingested"
	// StatusDuplicate means an already ingested track matched by file
	// hash or audio content.
	StatusDuplicate Status = "duplicate"
	// StatusSkipped means the audio failed the duration bounds.
	StatusSkipped Status = "skipped"
	// StatusError means the file could not be ingested.
	StatusError Status = "error"
)

// Result reports the outcome of one file. For duplicates TrackID, Title
// and Artist describe the existing track. Err carries the cause for
// skipped and error outcomes.
type Result struct {
	Status  Status
	TrackID string
	Title   *string
	Artist  *string
	Err     error
}

// Dependency slices, narrowed so tests can substitute fakes.

type pcmDecoder interface {
	DecodeAndValidate(ctx context.Context, data []byte, minDuration, maxDuration time.Duration) (pcm16k, pcm48k []byte, err error)
}

type duplicateDetector interface {
	FindByHash(hash string) (string, error)
	FindByContent(ctx context.Context, pcm16kF32LE []byte, durationSec float64) (dupID, fingerprint string, err error)
}

type fingerprintStore interface {
	Store(ctx context.Context, pcm16kF32LE []byte, trackID string) error
	Delete(ctx context.Context, trackID string) error
}

type chunkEmbedder interface {
	Enabled() bool
	ModelName() string
	Dim() int
	EmbedChunks(ctx context.Context, chunks []embedding.Chunk) ([]embedding.EmbeddedChunk, error)
}

type vectorWriter interface {
	UpsertChunks(ctx context.Context, trackID string, chunks []embedding.EmbeddedChunk, meta vecstore.TrackMeta) (int, error)
	DeleteTrack(ctx context.Context, trackID string) error
}

type trackStore interface {
	GetTrack(id string) (datastore.Track, error)
	InsertTrack(track *datastore.Track) error
}

type blobWriter interface {
	Save(hash, ext string, data []byte) (string, error)
	Remove(path string) error
}

// Pipeline ingests audio files one at a time. The mutex is the
// single-writer gate: the fingerprint index tolerates only one writer,
// and serializing ingests keeps embedding inference from competing with
// searches for the model.
type Pipeline struct {
	mu sync.Mutex

	settings     *conf.Settings
	decoder      pcmDecoder
	prober       streamProber
	detector     duplicateDetector
	fingerprints fingerprintStore
	embedder     chunkEmbedder
	vectors      vectorWriter
	store        trackStore
	blobs        blobWriter

	metrics *metrics.IngestMetrics
}

// NewPipeline wires the pipeline over the shared service components. The
// duplicate detector and blob store are private to the pipeline and built
// here.
func NewPipeline(settings *conf.Settings, store datastore.Interface, decoder *audio.Decoder, prober *audio.Prober, index *olaf.Index, embedder *embedding.Service, vectors *vecstore.Store) *Pipeline {
	return &Pipeline{
		settings:     settings,
		decoder:      decoder,
		prober:       prober,
		detector:     dedup.NewDetector(settings, store),
		fingerprints: index,
		embedder:     embedder,
		vectors:      vectors,
		store:        store,
		blobs:        NewBlobStore(settings),
	}
}

// SetMetrics attaches ingest metrics. Safe to leave unset in tests.
func (p *Pipeline) SetMetrics(m *metrics.IngestMetrics) {
	p.metrics = m
}

// IngestFile runs the full pipeline on one file. origName is the
// client-supplied filename, used only for the blob extension. A pipeline
// already processing another file returns ErrPipelineBusy immediately;
// TryLock makes the check and the acquisition one atomic step.
func (p *Pipeline) IngestFile(ctx context.Context, path, origName string) (*Result, error) {
	if !p.mu.TryLock() {
		return nil, ErrPipelineBusy
	}
	defer p.mu.Unlock()

	start := time.Now()
	result := p.ingestLocked(ctx, path, origName)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordIngest(string(result.Status))
		p.metrics.RecordIngestDuration(elapsed.Seconds())
	}

	switch result.Status {
	case StatusIngested, StatusDuplicate:
		ingestLogger.Info("ingest finished",
			"status", result.Status,
			"track_id", result.TrackID,
			"file", origName,
			"duration_ms", elapsed.Milliseconds())
	case StatusSkipped:
		ingestLogger.Info("ingest skipped",
			"file", origName,
			"reason", result.Err)
	case StatusError:
		ingestLogger.Error("ingest failed",
			"file", origName,
			"error", result.Err)
	}
	return result, nil
}

// ingestLocked is the pipeline body, run under the single-flight lock.
func (p *Pipeline) ingestLocked(ctx context.Context, path, origName string) *Result {
	// Fast dedup on the exact file bytes, before any decoding work.
	hash, err := dedup.HashFile(path)
	if err != nil {
		return &Result{Status: StatusError, Err: err}
	}
	dupID, err := p.detector.FindByHash(hash)
	if err != nil {
		return &Result{Status: StatusError, Err: err}
	}
	if dupID != "" {
		ingestLogger.Info("exact file duplicate", "duplicate_of", dupID, "hash", hash)
		return p.duplicateResult(dupID)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a server-side temp file or CLI argument
	if err != nil {
		return &Result{Status: StatusError, Err: errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			FileContext(path, -1).
			Build()}
	}

	meta := extractMetadata(ctx, p.prober, data)

	pcm16k, pcm48k, err := p.decoder.DecodeAndValidate(ctx, data,
		p.settings.Ingest.MinDuration, p.settings.Ingest.MaxDuration)
	if err != nil {
		if errors.Is(err, audio.ErrTooShort) || errors.Is(err, audio.ErrTooLong) {
			return &Result{Status: StatusSkipped, Err: err}
		}
		return &Result{Status: StatusError, Err: err}
	}
	durationSec := audio.PCMDuration(pcm16k, conf.FingerprintSampleRate, audio.BytesPerF32Sample)

	blobPath, err := p.blobs.Save(hash, extFromName(origName), data)
	if err != nil {
		return &Result{Status: StatusError, Err: err}
	}

	// Content dedup runs before indexing so a duplicate never leaves
	// stray index entries; only the blob needs removing.
	dupID, fingerprint, err := p.detector.FindByContent(ctx, pcm16k, durationSec)
	if err != nil {
		p.removeBlob(blobPath)
		return &Result{Status: StatusError, Err: err}
	}
	if dupID != "" {
		p.removeBlob(blobPath)
		return p.duplicateResult(dupID)
	}

	// The track ID is fixed before indexing so both indexes and the row
	// agree on it.
	trackID := uuid.New().String()
	olafIndexed, chunkCount := p.indexTrack(ctx, trackID, pcm16k, pcm48k, meta)

	track := p.buildTrack(trackID, hash, blobPath, origName, durationSec, int64(len(data)), fingerprint, meta, olafIndexed, chunkCount)
	if err := p.store.InsertTrack(track); err != nil {
		p.rollback(trackID, blobPath, olafIndexed, chunkCount)
		return &Result{Status: StatusError, Err: err}
	}

	return &Result{
		Status:  StatusIngested,
		TrackID: trackID,
		Title:   meta.Title,
		Artist:  meta.Artist,
	}
}

// indexTrack runs the two index writes concurrently. Either branch
// failing degrades that lane for this track but never fails the ingest;
// the returned flags end up on the track row.
func (p *Pipeline) indexTrack(ctx context.Context, trackID string, pcm16k, pcm48k []byte, meta trackMetadata) (olafIndexed bool, chunkCount int) {
	var g errgroup.Group

	g.Go(func() error {
		if err := p.fingerprints.Store(ctx, pcm16k, trackID); err != nil {
			ingestLogger.Warn("fingerprint indexing failed, track will not match exact searches",
				"track_id", trackID,
				"error", err)
			return nil
		}
		olafIndexed = true
		return nil
	})

	g.Go(func() error {
		if !p.embedder.Enabled() {
			return nil
		}
		chunks := embedding.ChunkPCM(pcm48k)
		if len(chunks) == 0 {
			return nil
		}
		embedded, err := p.embedder.EmbedChunks(ctx, chunks)
		if err != nil {
			ingestLogger.Warn("chunk embedding failed, track will not match vibe searches",
				"track_id", trackID,
				"error", err)
			return nil
		}
		n, err := p.vectors.UpsertChunks(ctx, trackID, embedded, vecstore.TrackMeta{
			Artist: meta.Artist,
			Title:  meta.Title,
			Genre:  meta.Genre,
		})
		if err != nil {
			ingestLogger.Warn("vector upsert failed, track will not match vibe searches",
				"track_id", trackID,
				"error", err)
			return nil
		}
		chunkCount = n
		if p.metrics != nil {
			p.metrics.RecordPointsUpserted(n)
		}
		return nil
	})

	// Branches swallow their errors, Wait only orders the writes before
	// the row insert.
	_ = g.Wait()
	return olafIndexed, chunkCount
}

// buildTrack assembles the row that makes the ingest visible.
func (p *Pipeline) buildTrack(trackID, hash, blobPath, origName string, durationSec float64, sizeBytes int64, fingerprint string, meta trackMetadata, olafIndexed bool, chunkCount int) *datastore.Track {
	track := &datastore.Track{
		ID:              trackID,
		Title:           meta.Title,
		Artist:          meta.Artist,
		Album:           meta.Album,
		Genre:           meta.Genre,
		Year:            meta.Year,
		DurationSeconds: durationSec,
		SampleRate:      meta.SampleRate,
		Channels:        meta.Channels,
		Bitrate:         meta.Bitrate,
		Format:          meta.Format,
		FileHashSHA256:  hash,
		FileSizeBytes:   sizeBytes,
		StoragePath:     blobPath,
		OlafIndexed:     olafIndexed,
		ChunkCount:      chunkCount,
	}

	if track.Title == nil {
		// An untitled track lists by its upload name.
		name := filepath.Base(origName)
		track.Title = nonEmpty(name[:len(name)-len(filepath.Ext(name))])
	}
	if fingerprint != "" {
		track.Chromaprint = &fingerprint
		track.ChromaprintDuration = &durationSec
	}
	if chunkCount > 0 {
		model := p.embedder.ModelName()
		dim := p.embedder.Dim()
		track.EmbeddingModel = &model
		track.EmbeddingDim = &dim
	}
	return track
}

// duplicateResult loads the existing track so the caller can report what
// the upload duplicated. A row that vanished between lookup and load
// still reports the ID.
func (p *Pipeline) duplicateResult(trackID string) *Result {
	result := &Result{Status: StatusDuplicate, TrackID: trackID}
	track, err := p.store.GetTrack(trackID)
	if err != nil {
		ingestLogger.Warn("duplicate track row missing", "track_id", trackID, "error", err)
		return result
	}
	result.Title = track.Title
	result.Artist = track.Artist
	return result
}

// rollback undoes the index writes and the blob after a failed row
// insert. Best effort with its own context, the original request may
// already be gone.
func (p *Pipeline) rollback(trackID, blobPath string, olafIndexed bool, chunkCount int) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if olafIndexed {
		if err := p.fingerprints.Delete(ctx, trackID); err != nil {
			ingestLogger.Warn("fingerprint rollback failed", "track_id", trackID, "error", err)
		}
	}
	if chunkCount > 0 {
		if err := p.vectors.DeleteTrack(ctx, trackID); err != nil {
			ingestLogger.Warn("vector rollback failed", "track_id", trackID, "error", err)
		}
	}
	p.removeBlob(blobPath)
}

// removeBlob deletes a stored blob, logging rather than propagating
// failure.
func (p *Pipeline) removeBlob(path string) {
	if err := p.blobs.Remove(path); err != nil {
		ingestLogger.Warn("blob removal failed", "path", path, "error", err)
	}
}
