package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/errors"
)

func TestExtractMetadataUntaggedFile(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{info: &audio.StreamInfo{
		DurationSeconds: 42.5,
		SampleRate:      48000,
		Channels:        1,
		Bitrate:         128000,
		FormatName:      "ogg",
	}}

	meta := extractMetadata(context.Background(), prober, []byte("no tags in here"))

	assert.Nil(t, meta.Title)
	assert.Nil(t, meta.Artist)
	assert.Nil(t, meta.Album)
	assert.Nil(t, meta.Genre)
	assert.Nil(t, meta.Year)

	require.NotNil(t, meta.SampleRate)
	require.NotNil(t, meta.Channels)
	require.NotNil(t, meta.Bitrate)
	require.NotNil(t, meta.Format)
	assert.Equal(t, 48000, *meta.SampleRate)
	assert.Equal(t, 1, *meta.Channels)
	assert.Equal(t, 128000, *meta.Bitrate)
	assert.Equal(t, "ogg", *meta.Format)
}

func TestExtractMetadataProbeFailure(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{err: errors.Newf("ffprobe failed").Component("audio").Category(errors.CategoryCommandExecution).Build()}
	meta := extractMetadata(context.Background(), prober, []byte("junk"))

	assert.Nil(t, meta.SampleRate)
	assert.Nil(t, meta.Channels)
	assert.Nil(t, meta.Bitrate)
	assert.Nil(t, meta.Format)
}

func TestExtractMetadataZeroValuesStayNil(t *testing.T) {
	t.Parallel()

	// ffprobe reporting zeros must not turn into real values on the row.
	prober := &fakeProber{info: &audio.StreamInfo{}}
	meta := extractMetadata(context.Background(), prober, []byte("junk"))

	assert.Nil(t, meta.SampleRate)
	assert.Nil(t, meta.Channels)
	assert.Nil(t, meta.Bitrate)
	assert.Nil(t, meta.Format)
}
