// version.go: build metadata endpoint.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initVersionRoutes() {
	c.Group.GET("/version", c.Version)
}

// Version reports the build metadata injected through ldflags.
func (c *Controller) Version(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"name":       c.Settings.Main.Name,
		"version":    c.buildInfo.GetVersion(),
		"git_sha":    c.buildInfo.GetGitSHA(),
		"build_time": c.buildInfo.GetBuildDate(),
	})
}
