// Package audio decodes uploaded audio into raw PCM through ffmpeg and
// provides the PCM helpers shared by the fingerprint, embedding and dedup
// paths.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
)

// PCM sample encodings produced by the decoder.
const (
	// FormatF32LE is 32-bit float little-endian PCM, consumed by the
	// fingerprint index and the embedding model.
	FormatF32LE = "f32le"
	// FormatS16LE is 16-bit signed little-endian PCM, consumed by fpcalc.
	FormatS16LE = "s16le"
)

// maxStderrBytes bounds how much ffmpeg stderr output is retained for
// error reporting.
const maxStderrBytes = 4096

// Duration bound violations are wrapped in these sentinels so the API
// layer can map them to distinct error codes.
var (
	ErrTooShort = errors.NewStd("audio too short")
	ErrTooLong  = errors.NewStd("audio too long")
)

var (
	audioLogger      *slog.Logger
	audioLevelVar    = new(slog.LevelVar)
	closeAudioLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "audio.log")
	audioLevelVar.Set(slog.LevelInfo)

	audioLogger, closeAudioLogger, err = logging.NewFileLogger(logFilePath, "audio", audioLevelVar)
	if err != nil {
		log.Printf("Failed to initialize audio file logger at %s: %v. Using default logger.", logFilePath, err)
		audioLogger = slog.Default().With("service", "audio")
		closeAudioLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeAudioLogger != nil {
		return closeAudioLogger()
	}
	return nil
}

// Decoder runs ffmpeg to convert uploaded audio into raw PCM.
type Decoder struct {
	ffmpegPath string
}

// NewDecoder resolves the ffmpeg binary from the configured path or the
// system PATH and returns a decoder bound to it.
func NewDecoder(settings *conf.Settings) (*Decoder, error) {
	ffmpegPath, err := conf.ValidateToolPath(settings.FFmpeg.Path, conf.GetFfmpegBinaryName())
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryConfiguration).
			Context("tool", "ffmpeg").
			Build()
	}
	return &Decoder{ffmpegPath: ffmpegPath}, nil
}

// decodeArgs builds the ffmpeg argument list for a mono PCM decode from
// stdin to stdout.
func decodeArgs(sampleRate int, format string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(conf.NumChannels),
		"-f", format,
		"-acodec", "pcm_" + format,
		"pipe:1",
	}
}

// DecodeToPCM decodes audio bytes to mono raw PCM at the requested sample
// rate. The input container format is detected by ffmpeg itself.
func (d *Decoder) DecodeToPCM(ctx context.Context, data []byte, sampleRate int, format string) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty audio data provided").
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(sampleRate, format)...)

	var stdout bytes.Buffer
	stderr := NewBoundedBuffer(maxStderrBytes)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		// Check if context was canceled or timed out
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.New(ctx.Err()).
					Component("audio").
					Category(errors.CategoryTimeout).
					Timing("ffmpeg-decode", time.Since(start)).
					Context("sample_rate", sampleRate).
					Build()
			}
			return nil, ctx.Err()
		}

		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		audioLogger.Warn("ffmpeg decode failed",
			"sample_rate", sampleRate,
			"format", format,
			"input_bytes", len(data),
			"error", errMsg)
		return nil, errors.Newf("ffmpeg decode failed: %s", errMsg).
			Component("audio").
			Category(errors.CategoryAudioDecode).
			Context("sample_rate", sampleRate).
			Context("format", format).
			Build()
	}

	if stdout.Len() == 0 {
		return nil, errors.Newf("ffmpeg produced no output").
			Component("audio").
			Category(errors.CategoryAudioDecode).
			Context("sample_rate", sampleRate).
			Context("format", format).
			Build()
	}

	audioLogger.Debug("decoded audio to PCM",
		"sample_rate", sampleRate,
		"format", format,
		"input_bytes", len(data),
		"output_bytes", stdout.Len(),
		"duration_ms", time.Since(start).Milliseconds())

	return stdout.Bytes(), nil
}

// DecodeDualRate decodes the same input to 16 kHz and 48 kHz f32le PCM
// concurrently. The 16 kHz lane feeds the fingerprint index, the 48 kHz
// lane feeds the embedding model.
func (d *Decoder) DecodeDualRate(ctx context.Context, data []byte) (pcm16k, pcm48k []byte, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var decodeErr error
		pcm16k, decodeErr = d.DecodeToPCM(gctx, data, conf.FingerprintSampleRate, FormatF32LE)
		return decodeErr
	})
	g.Go(func() error {
		var decodeErr error
		pcm48k, decodeErr = d.DecodeToPCM(gctx, data, conf.SampleRate, FormatF32LE)
		return decodeErr
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pcm16k, pcm48k, nil
}

// DecodeAndValidate decodes dual rate PCM and enforces duration bounds.
// Duration is measured from the decoded 16 kHz lane, not from container
// metadata, so truncated or padded files are judged by actual content.
func (d *Decoder) DecodeAndValidate(ctx context.Context, data []byte, minDuration, maxDuration time.Duration) (pcm16k, pcm48k []byte, err error) {
	pcm16k, pcm48k, err = d.DecodeDualRate(ctx, data)
	if err != nil {
		return nil, nil, err
	}

	duration := PCMDuration(pcm16k, conf.FingerprintSampleRate, BytesPerF32Sample)
	if err := checkDurationBounds(duration, minDuration, maxDuration); err != nil {
		return nil, nil, err
	}
	return pcm16k, pcm48k, nil
}

// checkDurationBounds compares a decoded duration in seconds against the
// configured bounds. A zero bound disables that side of the check.
func checkDurationBounds(duration float64, minDuration, maxDuration time.Duration) error {
	if minDuration > 0 && duration < minDuration.Seconds() {
		return errors.New(fmt.Errorf("%w: %.2fs < minimum %.2fs", ErrTooShort, duration, minDuration.Seconds())).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("duration_sec", duration).
			Build()
	}
	if maxDuration > 0 && duration > maxDuration.Seconds() {
		return errors.New(fmt.Errorf("%w: %.2fs > maximum %.2fs", ErrTooLong, duration, maxDuration.Seconds())).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("duration_sec", duration).
			Build()
	}
	return nil
}

// BoundedBuffer is a thread-safe bounded buffer for subprocess stderr
// capture. When full it discards older data in favor of the most recent
// writes, which is where ffmpeg puts the actionable message.
type BoundedBuffer struct {
	buffer bytes.Buffer
	mu     sync.Mutex
	size   int
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified size
func NewBoundedBuffer(size int) *BoundedBuffer {
	return &BoundedBuffer{
		size: size,
	}
}

// Write implements the io.Writer interface
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer.Len()+len(p) > b.size {
		// If the new data would exceed the buffer size, trim the existing data
		b.buffer.Reset()
		if len(p) > b.size {
			// If the new data is larger than the buffer size, only keep the last 'size' bytes
			p = p[len(p)-b.size:]
		}
	}
	return b.buffer.Write(p)
}

// String returns the contents of the buffer as a string
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}
