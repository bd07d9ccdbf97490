// health.go: liveness and dependency reporting.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/soundprint/soundprint/internal/conf"
)

// healthProbeTimeout caps the vector store reachability check so a hung
// qdrant connection cannot stall the health endpoint.
const healthProbeTimeout = 2 * time.Second

// HealthCheck reports liveness plus the state of every external
// dependency: database, vector store, decode and fingerprint binaries,
// and free space on the storage volume. The endpoint itself always
// answers 200; orchestrators read the per-dependency statuses.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"version": c.buildInfo.GetVersion(),
	}

	if c.startTime != nil {
		response["uptime_seconds"] = time.Since(*c.startTime).Seconds()
	}

	deps := map[string]any{
		"database":     c.databaseStatus(),
		"vector_store": c.vectorStoreStatus(ctx.Request().Context()),
		"olaf":         toolStatus(c.Settings.Olaf.Path, conf.GetOlafBinaryName()),
		"fpcalc":       toolStatus(c.Settings.Chromaprint.Path, conf.GetFpcalcBinaryName()),
		"ffmpeg":       toolStatus(c.Settings.FFmpeg.Path, conf.GetFfmpegBinaryName()),
		"storage":      storageStatus(c.Settings.Storage.Root),
	}
	response["dependencies"] = deps

	return ctx.JSON(http.StatusOK, response)
}

func (c *Controller) databaseStatus() map[string]any {
	count, err := c.DS.CountTracks()
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "tracks": count}
}

func (c *Controller) vectorStoreStatus(reqCtx context.Context) map[string]any {
	probeCtx, cancel := context.WithTimeout(reqCtx, healthProbeTimeout)
	defer cancel()

	if err := c.vectors.HealthCheck(probeCtx); err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

// toolStatus reports whether an external binary resolves, either at its
// configured path or on PATH.
func toolStatus(configuredPath, toolName string) map[string]any {
	path, err := conf.ValidateToolPath(configuredPath, toolName)
	if err != nil {
		return map[string]any{"status": "missing"}
	}
	return map[string]any{"status": "ok", "path": path}
}

// storageStatus reports free space on the volume holding the blob root.
func storageStatus(root string) map[string]any {
	usage, err := disk.Usage(root)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{
		"status":       "ok",
		"free_bytes":   usage.Free,
		"total_bytes":  usage.Total,
		"used_percent": usage.UsedPercent,
	}
}
