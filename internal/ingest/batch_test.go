package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/audio"
)

// populateLibrary lays out a small directory tree mixing audio and
// non-audio files.
func populateLibrary(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, content, 0o600))
	}
	return dir
}

func TestCollectAudioFiles(t *testing.T) {
	t.Parallel()

	dir := populateLibrary(t, map[string][]byte{
		"b.mp3":          []byte("b"),
		"A.WAV":          []byte("a"),
		"notes.txt":      []byte("not audio"),
		"cover.jpg":      []byte("not audio"),
		"sub/deep/c.ogg": []byte("c"),
		"sub/d.m4a":      []byte("d"),
	})

	paths, err := collectAudioFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	// Sorted, recursive, extension match is case-insensitive.
	assert.Equal(t, []string{
		filepath.Join(dir, "A.WAV"),
		filepath.Join(dir, "b.mp3"),
		filepath.Join(dir, "sub", "d.m4a"),
		filepath.Join(dir, "sub", "deep", "c.ogg"),
	}, paths)
}

func TestIngestDirectoryReport(t *testing.T) {
	t.Parallel()

	dir := populateLibrary(t, map[string][]byte{
		"good.mp3":  []byte("good-audio"),
		"short.mp3": []byte("short-audio"),
		"bad.mp3":   []byte("bad-audio"),
		"dup.mp3":   []byte("dup-audio"),
	})

	deps := defaultDeps()
	deps.decoder = &fakeDecoder{fn: func(data []byte) ([]byte, []byte, error) {
		switch string(data) {
		case "short-audio":
			return nil, nil, fmt.Errorf("%w: 1.50s < minimum 3.00s", audio.ErrTooShort)
		case "bad-audio":
			return nil, nil, fmt.Errorf("ffmpeg decode failed: invalid data")
		default:
			return pcm16kOf(12.0), pcm48kOf(12.0), nil
		}
	}}
	deps.detector.hashDups = map[string]string{
		sha256Hex([]byte("dup-audio")): existingTrackID,
	}
	p := newTestPipeline(deps)

	report, err := p.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Path, "bad.mp3")
	assert.Contains(t, report.Failures[0].Reason, "decode failed")
}

func TestIngestDirectoryEmpty(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(defaultDeps())
	report, err := p.IngestDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.Failures)
}

func TestIngestDirectoryCanceledContext(t *testing.T) {
	t.Parallel()

	dir := populateLibrary(t, map[string][]byte{
		"one.mp3": []byte("one"),
		"two.mp3": []byte("two"),
	})
	p := newTestPipeline(defaultDeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.IngestDirectory(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Total)
	assert.Zero(t, report.Ingested)
}
