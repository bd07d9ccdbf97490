// auth.go: admin key authentication for mutating endpoints.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderAdminKey is the request header carrying the shared admin key.
const HeaderAdminKey = "X-Admin-Key"

// AdminAuthMiddleware guards mutating routes with the configured admin
// key. Fail closed: when no key is configured every guarded request is
// rejected rather than waved through. The comparison is constant time so
// response timing does not leak how much of a guessed key matched.
func (c *Controller) AdminAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			configured := c.Settings.Security.AdminKey
			if configured == "" {
				c.logAPIRequest(ctx, slog.LevelWarn, "rejected admin request", "reason", "admin key not configured")
				return c.RespondError(ctx, http.StatusForbidden, CodeAuthNotConfigured,
					"admin key is not configured on the server")
			}

			provided := ctx.Request().Header.Get(HeaderAdminKey)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) != 1 {
				c.logAPIRequest(ctx, slog.LevelWarn, "rejected admin request", "reason", "invalid admin key")
				return c.RespondError(ctx, http.StatusForbidden, CodeForbidden, "invalid admin key")
			}

			return next(ctx)
		}
	}
}
