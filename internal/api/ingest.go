// ingest.go: the admin-gated ingestion endpoint. Uploads are staged to a
// temp file and handed to the single-flight ingest pipeline.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/ingest"
)

// initIngestRoutes registers the ingest endpoint. Body limit reasoning as
// for search: one megabyte of headroom above the file limit.
func (c *Controller) initIngestRoutes() {
	c.Group.POST("/ingest", c.HandleIngest, c.AdminAuthMiddleware(), middleware.BodyLimit("51M"))
}

// ingestPolicy returns the ingest upload policy with the configured size
// limit applied.
func (c *Controller) ingestPolicy() uploadPolicy {
	policy := ingestUploadPolicy
	if c.Settings.Ingest.MaxUploadSize > 0 {
		policy.maxBytes = c.Settings.Ingest.MaxUploadSize
	}
	return policy
}

// ingestResponse is the success body for ingested and duplicate uploads.
type ingestResponse struct {
	TrackID string  `json:"track_id"`
	Title   *string `json:"title"`
	Artist  *string `json:"artist"`
	Status  string  `json:"status"`
}

// HandleIngest stores an uploaded file in the library. Both a fresh
// ingest and a duplicate return 201, distinguished by the status field;
// a pipeline already busy with another file returns 429 immediately so
// batch clients can back off and retry.
func (c *Controller) HandleIngest(ctx echo.Context) error {
	data, origName, ok, err := c.readUpload(ctx, c.ingestPolicy())
	if !ok {
		return err
	}

	// The pipeline hashes and reads from disk, so stage the upload in a
	// temp file that lives only for this request.
	tmp, err := os.CreateTemp("", "soundprint-upload-*"+filepath.Ext(origName))
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to stage upload")
	}
	tmpPath := tmp.Name()
	defer func() {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Printf("Failed to remove temp upload %s: %v", tmpPath, removeErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to stage upload")
	}
	if err := tmp.Close(); err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to stage upload")
	}

	result, err := c.pipeline.IngestFile(ctx.Request().Context(), tmpPath, origName)
	if err != nil {
		if errors.Is(err, ingest.ErrPipelineBusy) {
			return c.RespondError(ctx, http.StatusTooManyRequests, CodeRateLimited,
				"another ingestion is in progress, retry shortly")
		}
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError, "ingest failed")
	}

	switch result.Status {
	case ingest.StatusIngested, ingest.StatusDuplicate:
		c.logAPIRequest(ctx, slog.LevelInfo, "ingest completed",
			"track_id", result.TrackID,
			"status", string(result.Status),
			"filename", origName)
		return ctx.JSON(http.StatusCreated, ingestResponse{
			TrackID: result.TrackID,
			Title:   result.Title,
			Artist:  result.Artist,
			Status:  string(result.Status),
		})

	case ingest.StatusSkipped:
		if errors.Is(result.Err, audio.ErrTooLong) {
			return c.RespondError(ctx, http.StatusBadRequest, CodeAudioTooLong,
				"audio exceeds the maximum track duration")
		}
		return c.RespondError(ctx, http.StatusBadRequest, CodeAudioTooShort,
			"audio is shorter than the minimum track duration")

	default: // ingest.StatusError
		if errors.IsCategory(result.Err, errors.CategoryAudioDecode) {
			return c.RespondError(ctx, http.StatusBadRequest, CodeUnsupportedFormat,
				"could not decode audio, the file may be corrupt")
		}
		return c.HandleError(ctx, result.Err, http.StatusServiceUnavailable, CodeServiceUnavailable,
			"ingestion backend failure")
	}
}
