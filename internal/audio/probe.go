package audio

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
)

// StreamInfo carries the technical properties ffprobe reports for an
// audio file. Zero values mean ffprobe did not report the field.
type StreamInfo struct {
	DurationSeconds float64
	SampleRate      int
	Channels        int
	Bitrate         int
	FormatName      string
}

// Prober runs ffprobe against in-memory audio data.
type Prober struct {
	ffprobePath string
}

// NewProber resolves the ffprobe binary from the configured path or the
// system PATH and returns a prober bound to it.
func NewProber(settings *conf.Settings) (*Prober, error) {
	ffprobePath, err := conf.ValidateToolPath(settings.FFmpeg.FfprobePath, conf.GetFfprobeBinaryName())
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryConfiguration).
			Context("tool", "ffprobe").
			Build()
	}
	return &Prober{ffprobePath: ffprobePath}, nil
}

// Probe extracts technical stream information from audio bytes. Data is
// piped to ffprobe's stdin, so containers that need trailing metadata
// (some MP4 files) may fail; callers treat probe failures as missing
// metadata, not as ingest errors.
func (p *Prober) Probe(ctx context.Context, data []byte) (*StreamInfo, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty audio data provided").
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"pipe:0")

	var stdout bytes.Buffer
	stderr := NewBoundedBuffer(maxStderrBytes)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(ctx.Err()).
				Component("audio").
				Category(errors.CategoryTimeout).
				Context("tool", "ffprobe").
				Build()
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return nil, errors.Newf("ffprobe failed: %s", errMsg).
			Component("audio").
			Category(errors.CategoryCommandExecution).
			Context("tool", "ffprobe").
			Build()
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput extracts the fields of interest from ffprobe's JSON
// output. Missing fields are left at their zero value.
func parseProbeOutput(raw []byte) (*StreamInfo, error) {
	root, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryCommandExecution).
			Context("tool", "ffprobe").
			Context("operation", "parse_probe_output").
			Build()
	}

	info := &StreamInfo{}

	// ffprobe reports duration and bit_rate as JSON strings
	if durStr, err := root.GetString("format", "duration"); err == nil {
		if dur, err := strconv.ParseFloat(durStr, 64); err == nil {
			info.DurationSeconds = dur
		}
	}
	if name, err := root.GetString("format", "format_name"); err == nil {
		info.FormatName = name
	}
	if brStr, err := root.GetString("format", "bit_rate"); err == nil {
		if br, err := strconv.Atoi(brStr); err == nil {
			info.Bitrate = br
		}
	}

	streams, err := root.GetObjectArray("streams")
	if err != nil {
		return info, nil
	}
	for _, stream := range streams {
		codecType, err := stream.GetString("codec_type")
		if err != nil || codecType != "audio" {
			continue
		}
		if srStr, err := stream.GetString("sample_rate"); err == nil {
			if sr, err := strconv.Atoi(srStr); err == nil {
				info.SampleRate = sr
			}
		}
		if ch, err := stream.GetInt64("channels"); err == nil {
			info.Channels = int(ch)
		}
		break
	}

	return info, nil
}
