// Package olaf wraps the olaf_c command line fingerprinter for indexing
// and querying acoustic fingerprints against an LMDB-backed inverted
// index.
//
// The LMDB index has a single-writer constraint: Store and Delete must
// not run concurrently. The ingest pipeline serializes all writes.
//
// All PCM handed to this package must be 16 kHz mono f32le.
package olaf

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
)

// queryFieldCount is the number of CSV fields in one olaf_c query result
// line.
const queryFieldCount = 7

var (
	olafLogger      *slog.Logger
	olafLevelVar    = new(slog.LevelVar)
	closeOlafLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "olaf.log")
	olafLevelVar.Set(slog.LevelInfo)

	olafLogger, closeOlafLogger, err = logging.NewFileLogger(logFilePath, "olaf", olafLevelVar)
	if err != nil {
		log.Printf("Failed to initialize olaf file logger at %s: %v. Using default logger.", logFilePath, err)
		olafLogger = slog.Default().With("service", "olaf")
		closeOlafLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeOlafLogger != nil {
		return closeOlafLogger()
	}
	return nil
}

// Match is a single result from an olaf_c query.
type Match struct {
	MatchCount     int     // number of aligned fingerprint hashes
	QueryStart     float64 // match start in the query clip, seconds
	QueryStop      float64 // match stop in the query clip, seconds
	ReferencePath  string  // track name used at indexing time
	ReferenceID    int64   // internal olaf reference id
	ReferenceStart float64 // match start in the reference track, seconds
	ReferenceStop  float64 // match stop in the reference track, seconds
}

// Index runs olaf_c subcommands against a configured LMDB directory.
type Index struct {
	binPath string
	dbPath  string
}

// NewIndex builds an Index from settings. An absolute configured binary
// path that does not exist falls back to PATH resolution, so a missing
// binary surfaces on first use rather than at startup.
func NewIndex(settings *conf.Settings) *Index {
	binPath := settings.Olaf.Path
	if binPath == "" {
		binPath = conf.GetOlafBinaryName()
	}
	if filepath.IsAbs(binPath) {
		if _, err := os.Stat(binPath); err != nil {
			olafLogger.Warn("configured olaf binary does not exist, falling back to PATH",
				"configured_path", binPath)
			binPath = conf.GetOlafBinaryName()
		}
	}
	return &Index{binPath: binPath, dbPath: settings.Olaf.DBPath}
}

// env returns the subprocess environment with OLAF_DB pointing at the
// LMDB directory, creating the directory when missing.
func (ix *Index) env() ([]string, error) {
	absPath, err := filepath.Abs(ix.dbPath)
	if err != nil {
		return nil, errors.New(err).
			Component("olaf").
			Category(errors.CategoryFileIO).
			Context("db_path", ix.dbPath).
			Build()
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, errors.New(err).
			Component("olaf").
			Category(errors.CategoryFileIO).
			Context("db_path", absPath).
			Build()
	}
	return append(os.Environ(), "OLAF_DB="+absPath), nil
}

// writeTempPCM writes PCM to a temporary .raw file and returns its path.
// olaf_c reads audio from disk, not from stdin.
func writeTempPCM(pcm []byte) (string, error) {
	tmp, err := os.CreateTemp("", "soundprint-*.raw")
	if err != nil {
		return "", errors.New(err).
			Component("olaf").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_pcm").
			Build()
	}
	if _, err := tmp.Write(pcm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.New(err).
			Component("olaf").
			Category(errors.CategoryFileIO).
			Context("operation", "write_temp_pcm").
			Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.New(err).
			Component("olaf").
			Category(errors.CategoryFileIO).
			Context("operation", "close_temp_pcm").
			Build()
	}
	return tmp.Name(), nil
}

// run executes an olaf_c subcommand and returns its stdout. A missing
// binary is reported as a configuration error so callers can distinguish
// it from a failed subcommand.
func (ix *Index) run(ctx context.Context, args ...string) (string, error) {
	env, err := ix.env()
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, ix.binPath, args...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", errors.Newf("olaf_c binary not found at '%s', ensure olaf is installed and olaf.path is configured", ix.binPath).
				Component("olaf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		if ctx.Err() != nil {
			return "", errors.New(ctx.Err()).
				Component("olaf").
				Category(errors.CategoryTimeout).
				Context("subcommand", args[0]).
				Build()
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", errors.Newf("olaf_c %s failed: %s", args[0], errMsg).
			Component("olaf").
			Category(errors.CategoryCommandExecution).
			Context("subcommand", args[0]).
			Build()
	}

	return stdout.String(), nil
}

// Store indexes a track's fingerprint hashes under trackID.
func (ix *Index) Store(ctx context.Context, pcm16kF32LE []byte, trackID string) error {
	if len(pcm16kF32LE) == 0 {
		return errors.Newf("empty PCM data provided for indexing track %s", trackID).
			Component("olaf").
			Category(errors.CategoryValidation).
			Build()
	}

	tmpPath, err := writeTempPCM(pcm16kF32LE)
	if err != nil {
		return err
	}
	defer removeTemp(tmpPath)

	if _, err := ix.run(ctx, "store", tmpPath, trackID); err != nil {
		return err
	}

	olafLogger.Info("indexed track", "track_id", trackID, "pcm_bytes", len(pcm16kF32LE))
	return nil
}

// Query matches a PCM clip against the index. Results come back sorted
// by match count descending. A failed query subcommand yields an empty
// result set, not an error, so the search lane degrades to "no matches"
// when the index is empty or unreadable.
func (ix *Index) Query(ctx context.Context, pcm16kF32LE []byte) ([]Match, error) {
	if len(pcm16kF32LE) == 0 {
		return nil, nil
	}

	tmpPath, err := writeTempPCM(pcm16kF32LE)
	if err != nil {
		return nil, err
	}
	defer removeTemp(tmpPath)

	stdout, err := ix.run(ctx, "query", tmpPath, "query")
	if err != nil {
		if errors.IsCategory(err, errors.CategoryCommandExecution) {
			olafLogger.Error("olaf_c query failed, returning no matches", "error", err)
			return nil, nil
		}
		return nil, err
	}

	return parseQueryOutput(stdout), nil
}

// Delete removes a track's fingerprints from the index.
func (ix *Index) Delete(ctx context.Context, trackID string) error {
	if _, err := ix.run(ctx, "del", trackID); err != nil {
		return err
	}
	olafLogger.Info("deleted track from index", "track_id", trackID)
	return nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil {
		olafLogger.Warn("failed to clean up temp file", "path", path, "error", err)
	}
}

// parseQueryOutput parses olaf_c query stdout into matches, strongest
// first. Unparseable lines are skipped.
func parseQueryOutput(stdout string) []Match {
	var matches []Match
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m, ok := parseQueryLine(line)
		if !ok {
			olafLogger.Debug("skipping unparseable olaf output line", "line", line)
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchCount > matches[j].MatchCount
	})
	return matches
}

// parseQueryLine parses one result line. olaf_c emits comma-separated
// fields, older builds used semicolons.
func parseQueryLine(line string) (Match, bool) {
	parts := splitFields(line, ",")
	if len(parts) < queryFieldCount {
		parts = splitFields(line, ";")
	}
	if len(parts) < queryFieldCount {
		return Match{}, false
	}
	return partsToMatch(parts)
}

func splitFields(line, sep string) []string {
	parts := strings.Split(line, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func partsToMatch(parts []string) (Match, bool) {
	matchCount, err := strconv.Atoi(parts[0])
	if err != nil {
		return Match{}, false
	}
	queryStart, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Match{}, false
	}
	queryStop, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Match{}, false
	}
	refID, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return Match{}, false
	}
	refStart, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return Match{}, false
	}
	refStop, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return Match{}, false
	}

	return Match{
		MatchCount:     matchCount,
		QueryStart:     queryStart,
		QueryStop:      queryStop,
		ReferencePath:  parts[3],
		ReferenceID:    refID,
		ReferenceStart: refStart,
		ReferenceStop:  refStop,
	}, true
}
