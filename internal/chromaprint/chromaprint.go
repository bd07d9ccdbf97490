// Package chromaprint generates acoustic fingerprints with the fpcalc CLI
// and scores fingerprint similarity for content-level duplicate detection.
//
// Fingerprinting is best effort: a missing binary, a timeout or unusable
// output all yield an empty fingerprint, which callers treat as "no dedup
// possible" rather than as an ingest failure.
package chromaprint

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/logging"
)

// fingerprintPrefix marks the output line carrying the raw fingerprint.
const fingerprintPrefix = "FINGERPRINT="

// defaultTimeout bounds a single fpcalc invocation when the configured
// timeout is unset.
const defaultTimeout = 30 * time.Second

var (
	cprintLogger      *slog.Logger
	cprintLevelVar    = new(slog.LevelVar)
	closeCprintLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "chromaprint.log")
	cprintLevelVar.Set(slog.LevelInfo)

	cprintLogger, closeCprintLogger, err = logging.NewFileLogger(logFilePath, "chromaprint", cprintLevelVar)
	if err != nil {
		log.Printf("Failed to initialize chromaprint file logger at %s: %v. Using default logger.", logFilePath, err)
		cprintLogger = slog.Default().With("service", "chromaprint")
		closeCprintLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeCprintLogger != nil {
		return closeCprintLogger()
	}
	return nil
}

// Generator produces raw chromaprint fingerprints from PCM audio.
type Generator struct {
	fpcalcPath string
	timeout    time.Duration
}

// NewGenerator resolves the fpcalc binary and returns a generator. When
// the binary cannot be found the generator is still usable and produces
// empty fingerprints, disabling content dedup for the process.
func NewGenerator(settings *conf.Settings) *Generator {
	fpcalcPath, err := conf.ValidateToolPath(settings.Chromaprint.Path, conf.GetFpcalcBinaryName())
	if err != nil {
		cprintLogger.Warn("fpcalc not found, content duplicate detection disabled",
			"configured_path", settings.Chromaprint.Path,
			"error", err)
		return &Generator{}
	}

	timeout := settings.Chromaprint.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{fpcalcPath: fpcalcPath, timeout: timeout}
}

// Available reports whether the fpcalc binary was resolved.
func (g *Generator) Available() bool {
	return g.fpcalcPath != ""
}

// Generate fingerprints 16 kHz mono s16le PCM. durationSec is passed to
// fpcalc as the analysis length. Returns the raw comma-separated
// fingerprint, or an empty string when fingerprinting is not possible.
func (g *Generator) Generate(ctx context.Context, pcmS16LE []byte, durationSec float64) string {
	if g.fpcalcPath == "" || len(pcmS16LE) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.fpcalcPath,
		"-raw",
		"-rate", strconv.Itoa(conf.FingerprintSampleRate),
		"-channels", strconv.Itoa(conf.NumChannels),
		"-length", strconv.Itoa(int(durationSec)),
		"-signed",
		"-")

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(pcmS16LE)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			cprintLogger.Warn("fpcalc timed out", "timeout", g.timeout)
			return ""
		}
		cprintLogger.Warn("fpcalc failed",
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()))
		return ""
	}

	fingerprint := parseFingerprint(stdout.String())
	if fingerprint == "" {
		cprintLogger.Warn("fpcalc output did not contain a fingerprint line")
	}
	return fingerprint
}

// parseFingerprint extracts the raw fingerprint value from fpcalc output.
func parseFingerprint(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, fingerprintPrefix); ok {
			return value
		}
	}
	return ""
}
