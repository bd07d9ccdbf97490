// storage.go: content-addressed blob store for ingested audio files.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
)

// File permissions for stored audio. Directories are group-traversable,
// files are group-readable, nothing is world-accessible.
const (
	blobDirPerm  = 0o750
	blobFilePerm = 0o640
)

// BlobStore writes uploads to their canonical location under the storage
// root: raw/{hash[:2]}/{hash}.{ext}. The two-character fan-out keeps
// directory sizes manageable on filesystems that degrade with large flat
// directories.
type BlobStore struct {
	root string
}

// NewBlobStore builds a blob store rooted at the configured storage
// directory.
func NewBlobStore(settings *conf.Settings) *BlobStore {
	return &BlobStore{root: settings.Storage.Root}
}

// Root returns the storage root directory.
func (b *BlobStore) Root() string {
	return b.root
}

// Path returns the canonical location for a file hash without touching
// the filesystem.
func (b *BlobStore) Path(hash, ext string) string {
	return filepath.Join(b.root, "raw", hash[:2], hash+"."+ext)
}

// Save writes data to its canonical location, creating the fan-out
// directory as needed. Writing the same hash twice overwrites with
// identical content, so Save is idempotent.
func (b *BlobStore) Save(hash, ext string, data []byte) (string, error) {
	if len(hash) < 2 {
		return "", errors.Newf("malformed file hash %q", hash).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}

	path := b.Path(hash, ext)
	if err := os.MkdirAll(filepath.Dir(path), blobDirPerm); err != nil {
		return "", errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("operation", "create-blob-dir").
			Build()
	}
	if err := os.WriteFile(path, data, blobFilePerm); err != nil {
		return "", errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Context("operation", "write-blob").
			Build()
	}
	return path, nil
}

// Remove deletes a stored blob. A missing file is not an error, the
// cleanup paths that call this may race with each other.
func (b *BlobStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			FileContext(path, -1).
			Context("operation", "remove-blob").
			Build()
	}
	return nil
}

// extFromName derives the stored blob extension from the original upload
// filename: lowercase, no dot, "bin" when the name carries none.
func extFromName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return "bin"
	}
	return ext
}
