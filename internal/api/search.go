// search.go: the audio identification endpoint. A clip is validated,
// decoded to dual-rate PCM and handed to the search orchestrator.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/search"
)

const (
	// minClipDuration is the shortest clip the lanes can work with: the
	// exact lane needs enough audio for its sub-window consensus and the
	// vibe lane needs at least a fraction of one chunk.
	minClipDuration = 3 * time.Second

	defaultMaxResults = 10
	maxResultsCeiling = 50
)

// initSearchRoutes registers search-related API endpoints. The body limit
// sits one megabyte above the file limit so an oversized file reaches the
// handler and earns its validation code instead of a transport 413.
func (c *Controller) initSearchRoutes() {
	c.Group.POST("/search", c.HandleSearch, middleware.BodyLimit("11M"))
}

// searchPolicy returns the search upload policy with the configured size
// limit applied.
func (c *Controller) searchPolicy() uploadPolicy {
	policy := searchUploadPolicy
	if c.Settings.Search.MaxUploadSize > 0 {
		policy.maxBytes = c.Settings.Search.MaxUploadSize
	}
	return policy
}

// HandleSearch identifies an uploaded clip across the requested lanes.
//
// Validation failures map to 400 with a code the client can dispatch on.
// Lane failures map to 503 when every lane failed and 504 when every lane
// timed out; one surviving lane is a success.
func (c *Controller) HandleSearch(ctx echo.Context) error {
	data, _, ok, err := c.readUpload(ctx, c.searchPolicy())
	if !ok {
		return err
	}

	mode, err := search.ParseMode(ctx.FormValue("mode"))
	if err != nil {
		return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError,
			fmt.Sprintf("invalid mode %q, expected exact, vibe or both", ctx.FormValue("mode")))
	}

	maxResults := defaultMaxResults
	if raw := ctx.FormValue("max_results"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 || n > maxResultsCeiling {
			return c.RespondError(ctx, http.StatusBadRequest, CodeValidationError,
				fmt.Sprintf("max_results must be an integer between 1 and %d", maxResultsCeiling))
		}
		maxResults = n
	}

	reqCtx := ctx.Request().Context()

	pcm16k, pcm48k, err := c.decoder.DecodeAndValidate(reqCtx, data, minClipDuration, 0)
	if err != nil {
		if errors.Is(err, audio.ErrTooShort) {
			return c.RespondError(ctx, http.StatusBadRequest, CodeAudioTooShort,
				"clip must be at least 3 seconds long")
		}
		return c.RespondError(ctx, http.StatusBadRequest, CodeUnsupportedFormat,
			"could not decode audio, the file may be corrupt")
	}

	result, err := c.orchestrator.Search(reqCtx, pcm16k, pcm48k, mode, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrSearchTimeout):
			c.logAPIRequest(ctx, slog.LevelWarn, "search timed out", "mode", string(mode))
			return c.RespondError(ctx, http.StatusGatewayTimeout, CodeSearchTimeout,
				"search timed out, try a shorter clip or retry later")
		case errors.Is(err, search.ErrSearchUnavailable):
			c.logAPIRequest(ctx, slog.LevelWarn, "search lanes unavailable", "mode", string(mode), "error", err.Error())
			return c.RespondError(ctx, http.StatusServiceUnavailable, CodeServiceUnavailable,
				"search is temporarily unavailable")
		default:
			return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternalError, "search failed")
		}
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "search completed",
		"mode", string(result.ModeUsed),
		"exact_matches", len(result.ExactMatches),
		"vibe_matches", len(result.VibeMatches),
		"duration_ms", result.QueryDurationMs)

	return ctx.JSON(http.StatusOK, result)
}
