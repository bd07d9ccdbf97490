// errors.go: error body shape, error codes and centralized error handling.
package api

import (
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soundprint/soundprint/internal/errors"
)

// Error codes carried in the error body. Clients dispatch on these, the
// HTTP status alone is not specific enough.
const (
	CodeEmptyFile          = "EMPTY_FILE"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	CodeAudioTooShort      = "AUDIO_TOO_SHORT"
	CodeAudioTooLong       = "AUDIO_TOO_LONG"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeAuthNotConfigured  = "AUTH_NOT_CONFIGURED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeSearchTimeout      = "SEARCH_TIMEOUT"
	CodeNotFound           = "NOT_FOUND"
	CodeFileNotFound       = "FILE_NOT_FOUND"
	CodeInternalError      = "INTERNAL_SERVER_ERROR"
)

// ErrorDetail is the code and message pair inside every error body.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the wire shape of every API error:
// {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// NewErrorResponse builds an error body for a code and message.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// generateCorrelationID creates a unique identifier for error tracking
// using cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// Fall back to a fixed ID if crypto/rand fails
		return "ERR-RAND"
	}

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// RespondError writes an error body for an expected failure such as a
// validation rejection. Nothing is logged beyond the request log line.
func (c *Controller) RespondError(ctx echo.Context, status int, code, message string) error {
	return ctx.JSON(status, NewErrorResponse(code, message))
}

// HandleError logs an unexpected failure under a correlation id and writes
// the error body.
func (c *Controller) HandleError(ctx echo.Context, err error, status int, code, message string) error {
	correlationID := generateCorrelationID()
	ip := ctx.RealIP()

	c.logger.Printf("API Error [%s] from %s: %s: %v", correlationID, ip, message, err)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}

		c.apiLogger.Error("API Error",
			"correlation_id", correlationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"status", status,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(status, NewErrorResponse(code, message))
}

// httpErrorHandler renders errors that escape the handlers, echo's own
// routing and body-limit errors included, in the documented body shape.
func (c *Controller) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := CodeInternalError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		switch status {
		case http.StatusNotFound:
			code, message = CodeNotFound, "resource not found"
		case http.StatusMethodNotAllowed:
			code, message = CodeValidationError, "method not allowed"
		case http.StatusRequestEntityTooLarge:
			code, message = CodeFileTooLarge, "request body too large"
		default:
			if status < http.StatusInternalServerError {
				code = CodeValidationError
			}
			message = fmt.Sprintf("%v", httpErr.Message)
		}
	}

	if status >= http.StatusInternalServerError {
		correlationID := generateCorrelationID()
		c.logger.Printf("API Error [%s]: unhandled: %v", correlationID, err)
		if c.apiLogger != nil {
			c.apiLogger.Error("Unhandled API error",
				"correlation_id", correlationID,
				"error", err.Error(),
				"status", status,
				"path", ctx.Request().URL.Path,
				"method", ctx.Request().Method,
			)
		}
	}

	if writeErr := ctx.JSON(status, NewErrorResponse(code, message)); writeErr != nil {
		c.logger.Printf("Failed to write error response: %v", writeErr)
	}
}
