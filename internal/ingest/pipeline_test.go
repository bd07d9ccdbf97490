package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/vecstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

const existingTrackID = "99999999-9999-9999-9999-999999999999"

// fakeDecoder returns canned PCM, optionally varying by input bytes.
type fakeDecoder struct {
	pcm16k []byte
	pcm48k []byte
	err    error
	fn     func(data []byte) (pcm16k, pcm48k []byte, err error)
	calls  int
}

func (f *fakeDecoder) DecodeAndValidate(_ context.Context, data []byte, _, _ time.Duration) ([]byte, []byte, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(data)
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pcm16k, f.pcm48k, nil
}

type fakeProber struct {
	info *audio.StreamInfo
	err  error
}

func (f *fakeProber) Probe(context.Context, []byte) (*audio.StreamInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// fakeDetector keys hash duplicates by hash so batch tests can vary
// behavior per file.
type fakeDetector struct {
	hashDups     map[string]string
	hashErr      error
	contentDup   string
	fingerprint  string
	contentErr   error
	contentCalls int
}

func (f *fakeDetector) FindByHash(hash string) (string, error) {
	if f.hashErr != nil {
		return "", f.hashErr
	}
	return f.hashDups[hash], nil
}

func (f *fakeDetector) FindByContent(context.Context, []byte, float64) (string, string, error) {
	f.contentCalls++
	return f.contentDup, f.fingerprint, f.contentErr
}

type fakeFingerprints struct {
	storeErr error
	stored   []string
	deleted  []string
}

func (f *fakeFingerprints) Store(_ context.Context, _ []byte, trackID string) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, trackID)
	return nil
}

func (f *fakeFingerprints) Delete(_ context.Context, trackID string) error {
	f.deleted = append(f.deleted, trackID)
	return nil
}

type fakeEmbedder struct {
	disabled bool
	err      error
}

func (f *fakeEmbedder) Enabled() bool     { return !f.disabled }
func (f *fakeEmbedder) ModelName() string { return "clap-htsat-large" }
func (f *fakeEmbedder) Dim() int          { return 512 }

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []embedding.Chunk) ([]embedding.EmbeddedChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]embedding.EmbeddedChunk, 0, len(chunks))
	for i := range chunks {
		out = append(out, embedding.EmbeddedChunk{
			Vector:      make([]float32, 512),
			OffsetSec:   chunks[i].OffsetSec,
			Index:       chunks[i].Index,
			DurationSec: chunks[i].DurationSec,
		})
	}
	return out, nil
}

type fakeVectors struct {
	upsertErr error
	upserted  map[string]int
	metas     []vecstore.TrackMeta
	deleted   []string
}

func (f *fakeVectors) UpsertChunks(_ context.Context, trackID string, chunks []embedding.EmbeddedChunk, meta vecstore.TrackMeta) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if f.upserted == nil {
		f.upserted = make(map[string]int)
	}
	f.upserted[trackID] = len(chunks)
	f.metas = append(f.metas, meta)
	return len(chunks), nil
}

func (f *fakeVectors) DeleteTrack(_ context.Context, trackID string) error {
	f.deleted = append(f.deleted, trackID)
	return nil
}

type fakeTrackStore struct {
	insertErr error
	inserted  []*datastore.Track
	tracks    map[string]datastore.Track
}

func (f *fakeTrackStore) GetTrack(id string) (datastore.Track, error) {
	track, ok := f.tracks[id]
	if !ok {
		return datastore.Track{}, errors.Newf("track %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return track, nil
}

func (f *fakeTrackStore) InsertTrack(track *datastore.Track) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, track)
	return nil
}

type fakeBlobs struct {
	saveErr error
	saved   []string
	removed []string
}

func (f *fakeBlobs) Save(hash, ext string, _ []byte) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	path := filepath.Join("data", "raw", hash[:2], hash+"."+ext)
	f.saved = append(f.saved, path)
	return path, nil
}

func (f *fakeBlobs) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

var (
	_ pcmDecoder        = (*fakeDecoder)(nil)
	_ streamProber      = (*fakeProber)(nil)
	_ duplicateDetector = (*fakeDetector)(nil)
	_ fingerprintStore  = (*fakeFingerprints)(nil)
	_ chunkEmbedder     = (*fakeEmbedder)(nil)
	_ vectorWriter      = (*fakeVectors)(nil)
	_ trackStore        = (*fakeTrackStore)(nil)
	_ blobWriter        = (*fakeBlobs)(nil)
)

// testDeps bundles the fakes behind a pipeline so tests can adjust one
// dependency and inspect the rest.
type testDeps struct {
	decoder      *fakeDecoder
	prober       *fakeProber
	detector     *fakeDetector
	fingerprints *fakeFingerprints
	embedder     *fakeEmbedder
	vectors      *fakeVectors
	store        *fakeTrackStore
	blobs        *fakeBlobs
}

func newTestPipeline(deps *testDeps) *Pipeline {
	settings := &conf.Settings{}
	settings.Ingest.MinDuration = 3 * time.Second
	settings.Ingest.MaxDuration = 30 * time.Minute

	return &Pipeline{
		settings:     settings,
		decoder:      deps.decoder,
		prober:       deps.prober,
		detector:     deps.detector,
		fingerprints: deps.fingerprints,
		embedder:     deps.embedder,
		vectors:      deps.vectors,
		store:        deps.store,
		blobs:        deps.blobs,
	}
}

// defaultDeps sets up a happy path: a 12 second clip, no duplicates, all
// index writes succeeding.
func defaultDeps() *testDeps {
	return &testDeps{
		decoder: &fakeDecoder{
			pcm16k: pcm16kOf(12.0),
			pcm48k: pcm48kOf(12.0),
		},
		prober: &fakeProber{info: &audio.StreamInfo{
			SampleRate: 44100,
			Channels:   2,
			Bitrate:    192000,
			FormatName: "mp3",
		}},
		detector:     &fakeDetector{fingerprint: "3188585 3188585 3196777"},
		fingerprints: &fakeFingerprints{},
		embedder:     &fakeEmbedder{},
		vectors:      &fakeVectors{},
		store:        &fakeTrackStore{},
		blobs:        &fakeBlobs{},
	}
}

func pcm16kOf(secs float64) []byte {
	return make([]byte, int(secs*conf.FingerprintSampleRate)*audio.BytesPerF32Sample)
}

func pcm48kOf(secs float64) []byte {
	return make([]byte, int(secs*conf.SampleRate)*audio.BytesPerF32Sample)
}

func writeUpload(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestIngestFileStoresAndIndexes(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	p := newTestPipeline(deps)

	content := []byte("not really mp3 but good enough")
	path := writeUpload(t, "upload.tmp", content)

	result, err := p.IngestFile(context.Background(), path, "Night Drive.MP3")
	require.NoError(t, err)
	require.Equal(t, StatusIngested, result.Status)

	_, parseErr := uuid.Parse(result.TrackID)
	assert.NoError(t, parseErr, "track ID must be a UUID")

	// Blob written under the hash fan-out with the original extension.
	require.Len(t, deps.blobs.saved, 1)
	hash := sha256Hex(content)
	assert.Contains(t, deps.blobs.saved[0], hash+".mp3")
	assert.Empty(t, deps.blobs.removed)

	// Both indexes saw the same track ID the row was inserted with.
	require.Len(t, deps.fingerprints.stored, 1)
	assert.Equal(t, result.TrackID, deps.fingerprints.stored[0])
	// 12 s at a 10 s window and 5 s hop chunks at 0, 5 and 10 s; the
	// 2 s tail clears the 1 s minimum.
	assert.Equal(t, 3, deps.vectors.upserted[result.TrackID])

	require.Len(t, deps.store.inserted, 1)
	track := deps.store.inserted[0]
	assert.Equal(t, result.TrackID, track.ID)
	assert.Equal(t, hash, track.FileHashSHA256)
	assert.Equal(t, int64(len(content)), track.FileSizeBytes)
	assert.InDelta(t, 12.0, track.DurationSeconds, 1e-9)
	assert.True(t, track.OlafIndexed)
	assert.Equal(t, 3, track.ChunkCount)
	require.NotNil(t, track.Chromaprint)
	assert.Equal(t, "3188585 3188585 3196777", *track.Chromaprint)
	require.NotNil(t, track.ChromaprintDuration)
	assert.InDelta(t, 12.0, *track.ChromaprintDuration, 1e-9)
	require.NotNil(t, track.EmbeddingModel)
	assert.Equal(t, "clap-htsat-large", *track.EmbeddingModel)
	require.NotNil(t, track.EmbeddingDim)
	assert.Equal(t, 512, *track.EmbeddingDim)

	// No tags in the bytes, so the title falls back to the upload stem
	// and the technical fields come from the probe.
	require.NotNil(t, track.Title)
	assert.Equal(t, "Night Drive", *track.Title)
	require.NotNil(t, track.SampleRate)
	assert.Equal(t, 44100, *track.SampleRate)
	require.NotNil(t, track.Format)
	assert.Equal(t, "mp3", *track.Format)
}

func TestIngestFileHashDuplicateShortCircuits(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	content := []byte("already seen bytes")
	deps.detector.hashDups = map[string]string{sha256Hex(content): existingTrackID}
	title := "Original Upload"
	deps.store.tracks = map[string]datastore.Track{
		existingTrackID: {ID: existingTrackID, Title: &title},
	}
	p := newTestPipeline(deps)

	path := writeUpload(t, "dup.mp3", content)
	result, err := p.IngestFile(context.Background(), path, "dup.mp3")
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Equal(t, existingTrackID, result.TrackID)
	require.NotNil(t, result.Title)
	assert.Equal(t, "Original Upload", *result.Title)

	// Short-circuited before any heavy work.
	assert.Zero(t, deps.decoder.calls)
	assert.Empty(t, deps.blobs.saved)
	assert.Empty(t, deps.store.inserted)
}

func TestIngestFileContentDuplicateRemovesBlob(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	deps.detector.contentDup = existingTrackID
	p := newTestPipeline(deps)

	path := writeUpload(t, "reencode.ogg", []byte("same audio, new codec"))
	result, err := p.IngestFile(context.Background(), path, "reencode.ogg")
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Equal(t, existingTrackID, result.TrackID)

	// The blob written in step five is gone again and nothing was
	// indexed or inserted.
	require.Len(t, deps.blobs.saved, 1)
	assert.Equal(t, deps.blobs.saved, deps.blobs.removed)
	assert.Empty(t, deps.fingerprints.stored)
	assert.Empty(t, deps.vectors.upserted)
	assert.Empty(t, deps.store.inserted)
}

func TestIngestFileDurationBoundsMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		decodeErr  error
		wantStatus Status
		wantIs     error
	}{
		{
			name:       "too short is skipped",
			decodeErr:  fmt.Errorf("%w: 2.99s < minimum 3.00s", audio.ErrTooShort),
			wantStatus: StatusSkipped,
			wantIs:     audio.ErrTooShort,
		},
		{
			name:       "too long is skipped",
			decodeErr:  fmt.Errorf("%w: 1800.01s > maximum 1800.00s", audio.ErrTooLong),
			wantStatus: StatusSkipped,
			wantIs:     audio.ErrTooLong,
		},
		{
			name:       "decode failure is an error",
			decodeErr:  errors.Newf("ffmpeg decode failed: invalid data").Component("audio").Category(errors.CategoryAudioDecode).Build(),
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := defaultDeps()
			deps.decoder = &fakeDecoder{err: tt.decodeErr}
			p := newTestPipeline(deps)

			path := writeUpload(t, "clip.wav", []byte("pcm-ish"))
			result, err := p.IngestFile(context.Background(), path, "clip.wav")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, result.Status)
			require.Error(t, result.Err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, result.Err, tt.wantIs)
			}
			// Rejected before the blob write, nothing to clean up.
			assert.Empty(t, deps.blobs.saved)
			assert.Empty(t, deps.store.inserted)
		})
	}
}

func TestIngestFileIndexFailuresDegrade(t *testing.T) {
	t.Parallel()

	t.Run("fingerprint store failure", func(t *testing.T) {
		t.Parallel()

		deps := defaultDeps()
		deps.fingerprints.storeErr = errors.Newf("olaf store crashed").Component("olaf").Category(errors.CategoryCommandExecution).Build()
		p := newTestPipeline(deps)

		path := writeUpload(t, "a.mp3", []byte("audio-a"))
		result, err := p.IngestFile(context.Background(), path, "a.mp3")
		require.NoError(t, err)

		assert.Equal(t, StatusIngested, result.Status)
		require.Len(t, deps.store.inserted, 1)
		track := deps.store.inserted[0]
		assert.False(t, track.OlafIndexed)
		// The vector lane still went through.
		assert.Equal(t, 3, track.ChunkCount)
	})

	t.Run("embedding failure", func(t *testing.T) {
		t.Parallel()

		deps := defaultDeps()
		deps.embedder.err = errors.Newf("tensor invoke failed").Component("embedding").Category(errors.CategoryModelInference).Build()
		p := newTestPipeline(deps)

		path := writeUpload(t, "b.mp3", []byte("audio-b"))
		result, err := p.IngestFile(context.Background(), path, "b.mp3")
		require.NoError(t, err)

		assert.Equal(t, StatusIngested, result.Status)
		require.Len(t, deps.store.inserted, 1)
		track := deps.store.inserted[0]
		assert.True(t, track.OlafIndexed)
		assert.Zero(t, track.ChunkCount)
		assert.Nil(t, track.EmbeddingModel)
		assert.Nil(t, track.EmbeddingDim)
	})

	t.Run("vector upsert failure", func(t *testing.T) {
		t.Parallel()

		deps := defaultDeps()
		deps.vectors.upsertErr = errors.Newf("qdrant unreachable").Component("vecstore").Category(errors.CategoryVectorStore).Build()
		p := newTestPipeline(deps)

		path := writeUpload(t, "c.mp3", []byte("audio-c"))
		result, err := p.IngestFile(context.Background(), path, "c.mp3")
		require.NoError(t, err)

		assert.Equal(t, StatusIngested, result.Status)
		require.Len(t, deps.store.inserted, 1)
		assert.Zero(t, deps.store.inserted[0].ChunkCount)
	})
}

func TestIngestFileEmbedderDisabled(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	deps.embedder.disabled = true
	p := newTestPipeline(deps)

	path := writeUpload(t, "d.mp3", []byte("audio-d"))
	result, err := p.IngestFile(context.Background(), path, "d.mp3")
	require.NoError(t, err)

	assert.Equal(t, StatusIngested, result.Status)
	assert.Empty(t, deps.vectors.upserted)
	require.Len(t, deps.store.inserted, 1)
	track := deps.store.inserted[0]
	assert.Zero(t, track.ChunkCount)
	assert.Nil(t, track.EmbeddingModel)
	assert.True(t, track.OlafIndexed)
}

func TestIngestFileInsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	deps.store.insertErr = errors.Newf("unique constraint violated").Component("datastore").Category(errors.CategoryDatabase).Build()
	p := newTestPipeline(deps)

	path := writeUpload(t, "e.mp3", []byte("audio-e"))
	result, err := p.IngestFile(context.Background(), path, "e.mp3")
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	require.Error(t, result.Err)

	// Both index writes and the blob were undone.
	require.Len(t, deps.fingerprints.stored, 1)
	assert.Equal(t, deps.fingerprints.stored, deps.fingerprints.deleted)
	assert.Equal(t, deps.fingerprints.stored, deps.vectors.deleted)
	assert.Equal(t, deps.blobs.saved, deps.blobs.removed)
}

func TestIngestFileBusyPipeline(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	p := newTestPipeline(deps)

	p.mu.Lock()
	defer p.mu.Unlock()

	path := writeUpload(t, "f.mp3", []byte("audio-f"))
	result, err := p.IngestFile(context.Background(), path, "f.mp3")
	require.ErrorIs(t, err, ErrPipelineBusy)
	assert.Nil(t, result)
	assert.Zero(t, deps.decoder.calls)
}

func TestIngestFileDetectorErrorCleansBlob(t *testing.T) {
	t.Parallel()

	deps := defaultDeps()
	deps.detector.contentErr = errors.Newf("candidate query failed").Component("datastore").Category(errors.CategoryDatabase).Build()
	p := newTestPipeline(deps)

	path := writeUpload(t, "g.mp3", []byte("audio-g"))
	result, err := p.IngestFile(context.Background(), path, "g.mp3")
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, deps.blobs.saved, deps.blobs.removed)
	assert.Empty(t, deps.store.inserted)
}
