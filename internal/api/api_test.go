// api_test.go: shared fixtures for the handler tests. Handlers are
// driven directly through echo contexts against hand-written fakes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/buildinfo"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/ingest"
	"github.com/soundprint/soundprint/internal/search"
)

// --- fakes ---

type fakeClipDecoder struct {
	pcm16k  []byte
	pcm48k  []byte
	err     error
	gotData []byte
	minDur  time.Duration
	maxDur  time.Duration
	calls   int
}

func (f *fakeClipDecoder) DecodeAndValidate(_ context.Context, data []byte, minDuration, maxDuration time.Duration) ([]byte, []byte, error) {
	f.calls++
	f.gotData = data
	f.minDur = minDuration
	f.maxDur = maxDuration
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pcm16k, f.pcm48k, nil
}

type fakeSearcher struct {
	result  *search.Result
	err     error
	gotMode search.Mode
	gotMax  int
	got16k  []byte
	got48k  []byte
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, pcm16k, pcm48k []byte, mode search.Mode, maxResults int) (*search.Result, error) {
	f.calls++
	f.got16k = pcm16k
	f.got48k = pcm48k
	f.gotMode = mode
	f.gotMax = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePipeline struct {
	result  *ingest.Result
	err     error
	gotPath string
	gotOrig string
	// stagedContent is read from gotPath while the temp file still
	// exists, so tests can verify the staged bytes.
	stagedContent []byte
	calls         int
}

func (f *fakePipeline) IngestFile(_ context.Context, path, origName string) (*ingest.Result, error) {
	f.calls++
	f.gotPath = path
	f.gotOrig = origName
	if data, err := os.ReadFile(path); err == nil {
		f.stagedContent = data
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeFingerprintEraser struct {
	err     error
	deleted []string
}

func (f *fakeFingerprintEraser) Delete(_ context.Context, trackID string) error {
	f.deleted = append(f.deleted, trackID)
	return f.err
}

type fakeVectorStore struct {
	deleteErr error
	healthErr error
	deleted   []string
}

func (f *fakeVectorStore) DeleteTrack(_ context.Context, trackID string) error {
	f.deleted = append(f.deleted, trackID)
	return f.deleteErr
}

func (f *fakeVectorStore) HealthCheck(_ context.Context) error {
	return f.healthErr
}

type fakeBlobStore struct {
	root      string
	removeErr error
	removed   []string
}

func (f *fakeBlobStore) Root() string { return f.root }

func (f *fakeBlobStore) Remove(path string) error {
	f.removed = append(f.removed, path)
	return f.removeErr
}

type fakeDataStore struct {
	tracks       map[string]datastore.Track
	searchResult []datastore.Track
	searchTotal  int64
	searchErr    error
	gotQuery     string
	gotLimit     int
	gotOffset    int
	deleted      []string
	countErr     error
}

func (f *fakeDataStore) Open() error { return nil }

func (f *fakeDataStore) Close() error { return nil }

func (f *fakeDataStore) InsertTrack(_ *datastore.Track) error { return nil }

func (f *fakeDataStore) GetTrackIDByHash(string) (string, error) { return "", nil }

func (f *fakeDataStore) GetTrack(id string) (datastore.Track, error) {
	if track, ok := f.tracks[id]; ok {
		return track, nil
	}
	return datastore.Track{}, errors.Newf("track %s not found", id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}

func (f *fakeDataStore) TracksByIDs([]string) (map[string]datastore.Track, error) {
	return nil, nil
}

func (f *fakeDataStore) ChromaprintCandidates(float64, float64) ([]datastore.Track, error) {
	return nil, nil
}

func (f *fakeDataStore) SearchTracks(query string, limit, offset int) ([]datastore.Track, int64, error) {
	f.gotQuery = query
	f.gotLimit = limit
	f.gotOffset = offset
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.searchResult, f.searchTotal, nil
}

func (f *fakeDataStore) DeleteTrack(id string) error {
	f.deleted = append(f.deleted, id)
	if _, ok := f.tracks[id]; !ok {
		return errors.Newf("track %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	delete(f.tracks, id)
	return nil
}

func (f *fakeDataStore) CountTracks() (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.tracks)), nil
}

// Interface compliance.
var (
	_ clipDecoder         = (*fakeClipDecoder)(nil)
	_ searchRunner        = (*fakeSearcher)(nil)
	_ ingestRunner        = (*fakePipeline)(nil)
	_ fingerprintEraser   = (*fakeFingerprintEraser)(nil)
	_ vectorStore         = (*fakeVectorStore)(nil)
	_ blobStore           = (*fakeBlobStore)(nil)
	_ datastore.Interface = (*fakeDataStore)(nil)
)

// --- fixtures ---

type testMocks struct {
	ds       *fakeDataStore
	decoder  *fakeClipDecoder
	searcher *fakeSearcher
	pipeline *fakePipeline
	prints   *fakeFingerprintEraser
	vectors  *fakeVectorStore
	blobs    *fakeBlobStore
}

// newTestController builds a controller over fakes, bypassing New so no
// file loggers or background goroutines start.
func newTestController(t *testing.T) (*Controller, *testMocks) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Main.Name = "soundprint"
	settings.Search.MaxUploadSize = 10 << 20
	settings.Ingest.MaxUploadSize = 50 << 20
	settings.Storage.Root = t.TempDir()

	m := &testMocks{
		ds:       &fakeDataStore{tracks: map[string]datastore.Track{}},
		decoder:  &fakeClipDecoder{pcm16k: []byte{1, 2}, pcm48k: []byte{3, 4}},
		searcher: &fakeSearcher{result: &search.Result{ModeUsed: search.ModeBoth}},
		pipeline: &fakePipeline{},
		prints:   &fakeFingerprintEraser{},
		vectors:  &fakeVectorStore{},
	}
	m.blobs = &fakeBlobStore{root: settings.Storage.Root}

	now := time.Now()
	c := &Controller{
		Echo:         echo.New(),
		DS:           m.ds,
		Settings:     settings,
		decoder:      m.decoder,
		orchestrator: m.searcher,
		pipeline:     m.pipeline,
		fingerprints: m.prints,
		vectors:      m.vectors,
		blobs:        m.blobs,
		buildInfo:    &buildinfo.Context{Version: "1.2.3", GitSHA: "abc1234", BuildDate: "2026-01-02T03:04:05Z"},
		logger:       log.New(io.Discard, "", 0),
		trackCache:   cache.New(time.Minute, 0),
		startTime:    &now,
		apiLogger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return c, m
}

// multipartBody builds a multipart form with an optional file part and
// extra string fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("audio", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newUploadContext(c *Controller, target string, body *bytes.Buffer, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	return c.Echo.NewContext(req, rec), rec
}

func newGetContext(c *Controller, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	return c.Echo.NewContext(req, rec), rec
}

// decodeErrorBody asserts the documented error shape and returns the
// inner detail.
func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "error body should unmarshal: %s", rec.Body.String())
	require.NotEmpty(t, resp.Error.Code, "error body must carry a code")
	return resp.Error
}

// wavBytes returns a minimal RIFF/WAVE header padded to the requested
// total size. Magic detection reports it as audio/wav.
func wavBytes(total int) []byte {
	header := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")
	if total <= len(header) {
		return header
	}
	return append(header, make([]byte, total-len(header))...)
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// --- health and version ---

func TestHealthCheck(t *testing.T) {
	c, m := newTestController(t)
	track := datastore.Track{ID: "t1"}
	m.ds.tracks["t1"] = track

	ctx, rec := newGetContext(c, "/health")

	require.NoError(t, c.HealthCheck(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, "1.2.3", response["version"])
	assert.GreaterOrEqual(t, response["uptime_seconds"].(float64), 0.0)

	deps, ok := response["dependencies"].(map[string]any)
	require.True(t, ok, "dependencies block missing")

	database, ok := deps["database"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", database["status"])
	assert.InDelta(t, 1, database["tracks"].(float64), 0.001)

	vector, ok := deps["vector_store"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", vector["status"])

	// Binary presence depends on the host, only the keys are stable.
	for _, key := range []string{"olaf", "fpcalc", "ffmpeg", "storage"} {
		assert.Contains(t, deps, key)
	}

	storage, ok := deps["storage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", storage["status"])
	assert.Greater(t, storage["total_bytes"].(float64), 0.0)
}

func TestHealthCheckReportsFailingDependencies(t *testing.T) {
	c, m := newTestController(t)
	m.ds.countErr = errors.NewStd("db down")
	m.vectors.healthErr = errors.NewStd("qdrant unreachable")

	ctx, rec := newGetContext(c, "/health")

	require.NoError(t, c.HealthCheck(ctx))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays 200, dependency state is in the body")

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	deps := response["dependencies"].(map[string]any)

	database := deps["database"].(map[string]any)
	assert.Equal(t, "error", database["status"])
	assert.Contains(t, database["error"], "db down")

	vector := deps["vector_store"].(map[string]any)
	assert.Equal(t, "error", vector["status"])
}

func TestVersion(t *testing.T) {
	c, _ := newTestController(t)
	ctx, rec := newGetContext(c, "/api/v1/version")

	require.NoError(t, c.Version(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "soundprint", response["name"])
	assert.Equal(t, "1.2.3", response["version"])
	assert.Equal(t, "abc1234", response["git_sha"])
	assert.Equal(t, "2026-01-02T03:04:05Z", response["build_time"])
}

// --- error handler ---

func TestHTTPErrorHandlerShapes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown route", echo.NewHTTPError(http.StatusNotFound, "Not Found"), http.StatusNotFound, CodeNotFound},
		{"method not allowed", echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"), http.StatusMethodNotAllowed, CodeValidationError},
		{"body limit", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too big"), http.StatusRequestEntityTooLarge, CodeFileTooLarge},
		{"unhandled error", errors.NewStd("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t)
			ctx, rec := newGetContext(c, "/api/v1/whatever")

			c.httpErrorHandler(tt.err, ctx)

			assert.Equal(t, tt.wantStatus, rec.Code)
			detail := decodeErrorBody(t, rec)
			assert.Equal(t, tt.wantCode, detail.Code)
		})
	}
}
