// tracks.go: track library endpoints. Listing and detail are public, the
// delete cascade is admin gated, and the canonical audio file streams
// with range support.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/search"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func (c *Controller) initTrackRoutes() {
	c.Group.GET("/tracks", c.ListTracks)
	c.Group.GET("/tracks/:id", c.GetTrack)
	c.Group.DELETE("/tracks/:id", c.DeleteTrack, c.AdminAuthMiddleware())
	c.Group.GET("/tracks/:id/audio", c.ServeTrackAudio)
}

// TrackDetail is the full track view returned by the detail endpoint. It
// extends the TrackInfo summary with stream properties and index state.
type TrackDetail struct {
	search.TrackInfo
	SampleRate     *int      `json:"sample_rate"`
	Channels       *int      `json:"channels"`
	Bitrate        *int      `json:"bitrate"`
	Format         *string   `json:"format"`
	FileHashSHA256 string    `json:"file_hash_sha256"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	OlafIndexed    bool      `json:"olaf_indexed"`
	EmbeddingModel *string   `json:"embedding_model"`
	EmbeddingDim   *int      `json:"embedding_dim"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newTrackDetail(track *datastore.Track) *TrackDetail {
	return &TrackDetail{
		TrackInfo:      search.NewTrackInfo(track),
		SampleRate:     track.SampleRate,
		Channels:       track.Channels,
		Bitrate:        track.Bitrate,
		Format:         track.Format,
		FileHashSHA256: track.FileHashSHA256,
		FileSizeBytes:  track.FileSizeBytes,
		OlafIndexed:    track.OlafIndexed,
		EmbeddingModel: track.EmbeddingModel,
		EmbeddingDim:   track.EmbeddingDim,
		UpdatedAt:      track.UpdatedAt,
	}
}

// paginationMeta is serialized in camelCase, unlike the snake_case track
// fields. Clients already depend on this shape.
type paginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

type trackListResponse struct {
	Data       []search.TrackInfo `json:"data"`
	Pagination paginationMeta     `json:"pagination"`
}

// intQueryParam parses a numeric query parameter with a default for the
// empty string. Out of range numbers are clamped into [minVal, maxVal]
// rather than rejected; maxVal 0 means no upper bound. Non-numeric input
// is an error.
func intQueryParam(ctx echo.Context, name string, def, minVal, maxVal int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < minVal {
		n = minVal
	}
	if maxVal > 0 && n > maxVal {
		n = maxVal
	}
	return n, nil
}

// ListTracks returns a page of the library ordered by most recently
// ingested, optionally filtered by a title/artist/album substring.
func (c *Controller) ListTracks(ctx echo.Context) error {
	page, err := intQueryParam(ctx, "page", 1, 1, 0)
	if err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError, "page must be an integer")
	}
	pageSize, err := intQueryParam(ctx, "pageSize", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError, "pageSize must be an integer")
	}

	query := ctx.QueryParam("search")

	tracks, total, err := c.DS.SearchTracks(query, pageSize, (page-1)*pageSize)
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to list tracks")
	}

	data := make([]search.TrackInfo, 0, len(tracks))
	for i := range tracks {
		data = append(data, search.NewTrackInfo(&tracks[i]))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return ctx.JSON(http.StatusOK, trackListResponse{
		Data: data,
		Pagination: paginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	})
}

// GetTrack returns the full detail for one track.
func (c *Controller) GetTrack(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError, "track id must be a UUID")
	}

	if cached, found := c.trackCache.Get(id); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	track, err := c.DS.GetTrack(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.RespondError(ctx, http.StatusNotFound, CodeNotFound, "track not found")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to load track")
	}

	detail := newTrackDetail(&track)
	c.trackCache.Set(id, detail, cache.DefaultExpiration)

	return ctx.JSON(http.StatusOK, detail)
}

// DeleteTrack removes a track from every store. The fingerprint index,
// vector collection and blob cleanups are best effort: a failed cleanup
// leaves an orphan to reconcile later, while the row delete decides the
// response. Admin gated.
func (c *Controller) DeleteTrack(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError, "track id must be a UUID")
	}

	track, err := c.DS.GetTrack(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.RespondError(ctx, http.StatusNotFound, CodeNotFound, "track not found")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to load track")
	}

	reqCtx := ctx.Request().Context()

	if err := c.fingerprints.Delete(reqCtx, id); err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "fingerprint delete failed", "track_id", id, "error", err.Error())
	}
	if track.ChunkCount > 0 {
		if err := c.vectors.DeleteTrack(reqCtx, id); err != nil {
			c.logAPIRequest(ctx, slog.LevelWarn, "vector delete failed", "track_id", id, "error", err.Error())
		}
	}
	if err := c.blobs.Remove(track.StoragePath); err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "blob delete failed", "track_id", id, "error", err.Error())
	}

	if err := c.DS.DeleteTrack(id); err != nil {
		if errors.IsNotFound(err) {
			return c.RespondError(ctx, http.StatusNotFound, CodeNotFound, "track not found")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to delete track")
	}

	c.trackCache.Delete(id)
	c.logAPIRequest(ctx, slog.LevelInfo, "track deleted", "track_id", id)

	return ctx.NoContent(http.StatusNoContent)
}

// trackContentTypes maps stored formats onto media types for streaming.
var trackContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"webm": "audio/webm",
	"mp4":  "audio/mp4",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
}

// contentTypeForTrack picks the response media type from the probed
// format, falling back to the blob extension when probing produced none.
func contentTypeForTrack(track *datastore.Track) string {
	format := ""
	if track.Format != nil {
		format = strings.ToLower(*track.Format)
	}
	if format == "" {
		format = strings.ToLower(strings.TrimPrefix(filepath.Ext(track.StoragePath), "."))
	}
	if mediaType, ok := trackContentTypes[format]; ok {
		return mediaType
	}
	return "application/octet-stream"
}

// ServeTrackAudio streams the canonical audio file. http.ServeContent
// supplies range handling, so seeking in a browser player issues 206
// responses with correct Content-Range headers. The file hash doubles as
// a strong ETag since blobs are content addressed.
func (c *Controller) ServeTrackAudio(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError, "track id must be a UUID")
	}

	track, err := c.DS.GetTrack(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.RespondError(ctx, http.StatusNotFound, CodeNotFound, "track not found")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to load track")
	}

	// The stored path must resolve under the storage root. A row that
	// points elsewhere is treated as having no file.
	path, err := c.resolveBlobPath(track.StoragePath)
	if err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "storage path escapes root", "track_id", id, "path", track.StoragePath)
		return c.RespondError(ctx, http.StatusNotFound, CodeFileNotFound, "audio file not found")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c.RespondError(ctx, http.StatusNotFound, CodeFileNotFound, "audio file not found")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to open audio file")
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			c.logger.Printf("Failed to close audio file: %v", closeErr)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to stat audio file")
	}

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentType, contentTypeForTrack(&track))
	header.Set("ETag", `"`+track.FileHashSHA256+`"`)

	http.ServeContent(ctx.Response(), ctx.Request(), filepath.Base(path), stat.ModTime(), f)
	return nil
}

// resolveBlobPath cleans a stored path to an absolute one and verifies it
// stays under the storage root.
func (c *Controller) resolveBlobPath(stored string) (string, error) {
	path, err := filepath.Abs(filepath.Clean(stored))
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(c.blobs.Root())
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		return "", errors.Newf("path %s escapes storage root", path).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return path, nil
}
