package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/ingest"
)

// postIngest calls the handler directly; the admin auth middleware has
// its own tests.
func postIngest(t *testing.T, c *Controller, filename string, content []byte) (int, ErrorDetail, string) {
	t.Helper()

	body, contentType := multipartBody(t, filename, content, nil)
	ctx, rec := newUploadContext(c, "/api/v1/ingest", body, contentType)

	require.NoError(t, c.HandleIngest(ctx))

	if rec.Code == http.StatusCreated {
		return rec.Code, ErrorDetail{}, rec.Body.String()
	}
	return rec.Code, decodeErrorBody(t, rec), rec.Body.String()
}

func TestHandleIngestCreated(t *testing.T) {
	c, m := newTestController(t)
	m.pipeline.result = &ingest.Result{
		Status:  ingest.StatusIngested,
		TrackID: "3f2b7c1a-9a44-4a7e-8e8c-0d0f55a3b001",
		Title:   strPtr("Nightcall"),
		Artist:  strPtr("Kavinsky"),
	}
	upload := wavBytes(512)

	status, _, body := postIngest(t, c, "Night.wav", upload)

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, upload, m.pipeline.stagedContent, "pipeline reads the staged upload bytes")
	assert.Equal(t, "Night.wav", m.pipeline.gotOrig)

	// The staging file is request-scoped.
	_, statErr := os.Stat(m.pipeline.gotPath)
	assert.True(t, os.IsNotExist(statErr), "temp upload should be removed after the request")

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "3f2b7c1a-9a44-4a7e-8e8c-0d0f55a3b001", resp["track_id"])
	assert.Equal(t, "Nightcall", resp["title"])
	assert.Equal(t, "Kavinsky", resp["artist"])
	assert.Equal(t, "ingested", resp["status"])
}

func TestHandleIngestDuplicate(t *testing.T) {
	c, m := newTestController(t)
	m.pipeline.result = &ingest.Result{
		Status:  ingest.StatusDuplicate,
		TrackID: "3f2b7c1a-9a44-4a7e-8e8c-0d0f55a3b001",
	}

	status, _, body := postIngest(t, c, "again.wav", wavBytes(512))

	require.Equal(t, http.StatusCreated, status, "a duplicate is not an error")

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "duplicate", resp["status"])
	assert.Equal(t, "3f2b7c1a-9a44-4a7e-8e8c-0d0f55a3b001", resp["track_id"])
	assert.Nil(t, resp["title"])
}

func TestHandleIngestBusy(t *testing.T) {
	c, m := newTestController(t)
	m.pipeline.err = ingest.ErrPipelineBusy

	status, detail, _ := postIngest(t, c, "clip.wav", wavBytes(512))

	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, CodeRateLimited, detail.Code)
}

func TestHandleIngestDurationBounds(t *testing.T) {
	tests := []struct {
		name     string
		cause    error
		wantCode string
	}{
		{"too short", fmt.Errorf("%w: 0.80s < minimum 1.00s", audio.ErrTooShort), CodeAudioTooShort},
		{"too long", fmt.Errorf("%w: 7500.00s > maximum 7200.00s", audio.ErrTooLong), CodeAudioTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestController(t)
			m.pipeline.result = &ingest.Result{Status: ingest.StatusSkipped, Err: tt.cause}

			status, detail, _ := postIngest(t, c, "clip.wav", wavBytes(512))

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.wantCode, detail.Code)
		})
	}
}

func TestHandleIngestErrorMapping(t *testing.T) {
	t.Run("decode failure is the client's fault", func(t *testing.T) {
		c, m := newTestController(t)
		m.pipeline.result = &ingest.Result{
			Status: ingest.StatusError,
			Err: errors.Newf("ffmpeg decode failed: invalid data").
				Component("audio").
				Category(errors.CategoryAudioDecode).
				Build(),
		}

		status, detail, _ := postIngest(t, c, "broken.wav", wavBytes(512))

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, CodeUnsupportedFormat, detail.Code)
	})

	t.Run("backend failure is ours", func(t *testing.T) {
		c, m := newTestController(t)
		m.pipeline.result = &ingest.Result{
			Status: ingest.StatusError,
			Err:    errors.NewStd("olaf store: disk full"),
		}

		status, detail, _ := postIngest(t, c, "clip.wav", wavBytes(512))

		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, CodeServiceUnavailable, detail.Code)
	})
}

// FLAC is accepted for ingestion even though search rejects it.
func TestHandleIngestAcceptsFlac(t *testing.T) {
	c, m := newTestController(t)
	m.pipeline.result = &ingest.Result{
		Status:  ingest.StatusIngested,
		TrackID: "9a0b8c7d-6e5f-4a3b-2c1d-0e9f8a7b6c5d",
	}

	flac := append([]byte("fLaC\x00\x00\x00\x22"), make([]byte, 64)...)
	status, _, _ := postIngest(t, c, "album.flac", flac)

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, m.pipeline.calls)
}
