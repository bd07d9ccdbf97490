// metadata.go: best-effort tag and stream property extraction.
package ingest

import (
	"bytes"
	"context"

	"github.com/dhowden/tag"

	"github.com/soundprint/soundprint/internal/audio"
)

// trackMetadata collects the descriptive and technical fields extracted
// from an upload before decoding. Nil means the extractor did not produce
// the field.
type trackMetadata struct {
	Title      *string
	Artist     *string
	Album      *string
	Genre      *string
	Year       *int
	SampleRate *int
	Channels   *int
	Bitrate    *int
	Format     *string
}

// streamProber is the slice of the ffprobe wrapper the extractor needs.
type streamProber interface {
	Probe(ctx context.Context, data []byte) (*audio.StreamInfo, error)
}

// extractMetadata reads embedded tags and probes stream properties from
// the raw upload bytes. Both extractors are best effort: a file with no
// tags or an unprobeable container still ingests, just with nil fields.
func extractMetadata(ctx context.Context, prober streamProber, data []byte) trackMetadata {
	meta := trackMetadata{}
	readTags(data, &meta)
	probeStreams(ctx, prober, data, &meta)
	return meta
}

// readTags extracts title, artist, album, genre and year from ID3v1/v2,
// Vorbis comments or MP4 atoms, whichever the file carries.
func readTags(data []byte, meta *trackMetadata) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		ingestLogger.Debug("no readable tags", "error", err)
		return
	}

	meta.Title = nonEmpty(m.Title())
	meta.Artist = nonEmpty(m.Artist())
	meta.Album = nonEmpty(m.Album())
	meta.Genre = nonEmpty(m.Genre())
	if year := m.Year(); year > 0 {
		meta.Year = &year
	}
}

// probeStreams fills the technical fields from ffprobe output.
func probeStreams(ctx context.Context, prober streamProber, data []byte, meta *trackMetadata) {
	if prober == nil {
		return
	}

	info, err := prober.Probe(ctx, data)
	if err != nil {
		ingestLogger.Debug("stream probe failed", "error", err)
		return
	}

	if info.SampleRate > 0 {
		meta.SampleRate = &info.SampleRate
	}
	if info.Channels > 0 {
		meta.Channels = &info.Channels
	}
	if info.Bitrate > 0 {
		meta.Bitrate = &info.Bitrate
	}
	meta.Format = nonEmpty(info.FormatName)
}

// nonEmpty returns a pointer to s, or nil for the empty string.
func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
