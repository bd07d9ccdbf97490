// batch.go: sequential directory ingestion for the CLI.
package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soundprint/soundprint/internal/errors"
)

// batchExtensions are the file extensions the directory scan picks up.
var batchExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".webm": {},
	".ogg":  {},
	".mp4":  {},
	".m4a":  {},
	".flac": {},
}

// Failure records one file that could not be ingested.
type Failure struct {
	Path   string
	Reason string
}

// Report aggregates the per-file outcomes of a directory ingest.
type Report struct {
	Total      int
	Ingested   int
	Duplicates int
	Skipped    int
	Errors     int
	Failures   []Failure
}

// IngestDirectory recursively ingests every audio file under dir in
// sorted path order. Files are processed one at a time: the fingerprint
// index is single-writer and sequential processing bounds memory use.
// A canceled context stops between files and returns the partial report.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*Report, error) {
	paths, err := collectAudioFiles(dir)
	if err != nil {
		return nil, err
	}

	report := &Report{Total: len(paths)}
	if len(paths) == 0 {
		ingestLogger.Warn("no audio files found", "dir", dir)
		return report, nil
	}

	ingestLogger.Info("batch ingest starting", "dir", dir, "files", len(paths))

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ingestLogger.Info("batch ingest file",
			"index", i+1,
			"total", len(paths),
			"file", filepath.Base(path))

		result, err := p.IngestFile(ctx, path, filepath.Base(path))
		if err != nil {
			// The batch path is sequential, so this is a real failure
			// rather than lock contention.
			report.Errors++
			report.Failures = append(report.Failures, Failure{Path: path, Reason: err.Error()})
			continue
		}

		switch result.Status {
		case StatusIngested:
			report.Ingested++
		case StatusDuplicate:
			report.Duplicates++
		case StatusSkipped:
			report.Skipped++
		case StatusError:
			report.Errors++
			report.Failures = append(report.Failures, Failure{Path: path, Reason: result.Err.Error()})
		}
	}

	ingestLogger.Info("batch ingest finished",
		"total", report.Total,
		"ingested", report.Ingested,
		"duplicates", report.Duplicates,
		"skipped", report.Skipped,
		"errors", report.Errors)
	return report, nil
}

// collectAudioFiles walks dir and returns the sorted paths of every file
// with a recognized audio extension.
func collectAudioFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := batchExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("operation", "scan-directory").
			Context("dir", dir).
			Build()
	}
	sort.Strings(paths)
	return paths, nil
}
