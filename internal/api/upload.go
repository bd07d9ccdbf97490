// upload.go: shared multipart upload validation for the search and ingest
// endpoints.
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
)

// Fallback upload limits, used when settings carry no value.
const (
	defaultSearchUploadBytes = 10 << 20
	defaultIngestUploadBytes = 50 << 20
)

// uploadPolicy fixes the per-endpoint upload rules. The MIME allowlists
// are matched against magic bytes, never against the declared
// content-type, so a renamed file does not pass as audio.
type uploadPolicy struct {
	maxBytes int64
	allowed  []string
	formats  string // human readable list for the error message
}

var searchUploadPolicy = uploadPolicy{
	maxBytes: defaultSearchUploadBytes,
	allowed: []string{
		"audio/webm",
		"audio/ogg",
		"audio/mpeg",
		"audio/mp4",
		"audio/wav",
		"audio/x-wav",
	},
	formats: "WebM, OGG, MP3, MP4, WAV",
}

// The ingest allowlist extends the search one with FLAC and the webm
// video container, which is how magic detection reports audio-only webm
// recordings.
var ingestUploadPolicy = uploadPolicy{
	maxBytes: defaultIngestUploadBytes,
	allowed: []string{
		"audio/webm",
		"video/webm",
		"audio/ogg",
		"audio/mpeg",
		"audio/mp4",
		"audio/wav",
		"audio/x-wav",
		"audio/flac",
		"audio/x-flac",
	},
	formats: "MP3, WAV, FLAC, OGG, WebM, MP4",
}

// allowedMIME detects the content type from magic bytes and reports
// whether it is in the allowlist. Matching goes through mimetype.Is so
// registered aliases such as audio/x-wav match their canonical type.
func allowedMIME(data []byte, allowed []string) (string, bool) {
	detected := mimetype.Detect(data)
	for _, want := range allowed {
		if detected.Is(want) {
			return detected.String(), true
		}
	}
	return detected.String(), false
}

// readUpload reads the multipart "audio" part and runs the shared checks
// in their documented order: empty file, size limit, magic byte MIME.
// On failure the error response has been written and ok is false; the
// returned error is the handler's return value either way.
func (c *Controller) readUpload(ctx echo.Context, policy uploadPolicy) (data []byte, origName string, ok bool, err error) {
	fh, err := ctx.FormFile("audio")
	if err != nil {
		return nil, "", false, c.RespondError(ctx, http.StatusBadRequest, CodeValidationError,
			"multipart field 'audio' is required")
	}

	src, err := fh.Open()
	if err != nil {
		return nil, "", false, c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to read upload")
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			c.logger.Printf("Failed to close upload part: %v", closeErr)
		}
	}()

	data, err = io.ReadAll(src)
	if err != nil {
		return nil, "", false, c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError,
			"failed to read upload")
	}

	if len(data) == 0 {
		return nil, "", false, c.RespondError(ctx, http.StatusBadRequest, CodeEmptyFile,
			"empty file uploaded, please provide an audio file")
	}

	if int64(len(data)) > policy.maxBytes {
		return nil, "", false, c.RespondError(ctx, http.StatusBadRequest, CodeFileTooLarge,
			fmt.Sprintf("file exceeds the %d MiB limit", policy.maxBytes>>20))
	}

	if detected, allowed := allowedMIME(data, policy.allowed); !allowed {
		return nil, "", false, c.RespondError(ctx, http.StatusBadRequest, CodeUnsupportedFormat,
			fmt.Sprintf("unsupported audio format %s, supported: %s", detected, policy.formats))
	}

	return data, fh.Filename, true, nil
}
