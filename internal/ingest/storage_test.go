package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
)

func newTestBlobStore(t *testing.T) *BlobStore {
	t.Helper()
	settings := &conf.Settings{}
	settings.Storage.Root = t.TempDir()
	return NewBlobStore(settings)
}

func TestBlobStoreSaveLayout(t *testing.T) {
	t.Parallel()

	b := newTestBlobStore(t)
	hash := "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	data := []byte("audio bytes")

	path, err := b.Save(hash, "mp3", data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.Root(), "raw", "ab", hash+".mp3"), path)

	stored, err := os.ReadFile(path) //nolint:gosec // test-owned path
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	// Not world-accessible regardless of umask.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o007)
}

func TestBlobStoreSaveIdempotent(t *testing.T) {
	t.Parallel()

	b := newTestBlobStore(t)
	hash := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	first, err := b.Save(hash, "wav", []byte("one"))
	require.NoError(t, err)
	second, err := b.Save(hash, "wav", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBlobStoreSaveMalformedHash(t *testing.T) {
	t.Parallel()

	b := newTestBlobStore(t)
	_, err := b.Save("x", "mp3", []byte("data"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestBlobStoreRemoveMissingFile(t *testing.T) {
	t.Parallel()

	b := newTestBlobStore(t)
	assert.NoError(t, b.Remove(filepath.Join(b.Root(), "raw", "no", "nothing.mp3")))
}

func TestExtFromName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"Song.MP3", "mp3"},
		{"clip.webm", "webm"},
		{"nested.name.flac", "flac"},
		{"noextension", "bin"},
		{"", "bin"},
		{"trailingdot.", "bin"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extFromName(tt.name), "extFromName(%q)", tt.name)
	}
}
