// Package api exposes the HTTP surface of the service: search, ingest,
// track library, health and version endpoints on one echo instance.
package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/buildinfo"
	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/datastore"
	"github.com/soundprint/soundprint/internal/ingest"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/observability"
	"github.com/soundprint/soundprint/internal/olaf"
	"github.com/soundprint/soundprint/internal/search"
	"github.com/soundprint/soundprint/internal/vecstore"
)

// Track detail lookups are cached briefly; rows only change when an admin
// deletes a track, and deletion invalidates the entry explicitly.
const (
	trackCacheTTL   = 5 * time.Minute
	trackCacheSweep = 10 * time.Minute
)

// Dependency slices of the domain components, narrowed to what the
// handlers call so tests can substitute fakes.

type clipDecoder interface {
	DecodeAndValidate(ctx context.Context, data []byte, minDuration, maxDuration time.Duration) (pcm16k, pcm48k []byte, err error)
}

type searchRunner interface {
	Search(ctx context.Context, pcm16k, pcm48k []byte, mode search.Mode, maxResults int) (*search.Result, error)
}

type ingestRunner interface {
	IngestFile(ctx context.Context, path, origName string) (*ingest.Result, error)
}

type fingerprintEraser interface {
	Delete(ctx context.Context, trackID string) error
}

type vectorStore interface {
	DeleteTrack(ctx context.Context, trackID string) error
	HealthCheck(ctx context.Context) error
}

type blobStore interface {
	Root() string
	Remove(path string) error
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings

	decoder      clipDecoder
	orchestrator searchRunner
	pipeline     ingestRunner
	fingerprints fingerprintEraser
	vectors      vectorStore
	blobs        blobStore
	buildInfo    buildinfo.BuildInfo

	logger         *log.Logger
	trackCache     *cache.Cache // cache for track detail responses
	startTime      *time.Time
	apiLogger      *slog.Logger   // structured logger for API operations
	apiLevelVar    *slog.LevelVar // dynamic level control
	apiLoggerClose func() error   // closes the API log file
	metrics        *observability.Metrics
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithMetrics attaches the shared metrics instance and mounts /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithBuildInfo sets the build metadata reported by the health and version
// endpoints. Without it both report "unknown".
func WithBuildInfo(b buildinfo.BuildInfo) Option {
	return func(c *Controller) {
		c.buildInfo = b
	}
}

// New creates the API controller and registers all routes on e.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	decoder *audio.Decoder, orchestrator *search.Orchestrator, pipeline *ingest.Pipeline,
	index *olaf.Index, vectors *vecstore.Store,
	logger *log.Logger, opts ...Option) (*Controller, error) {
	return NewWithOptions(e, ds, settings, decoder, orchestrator, pipeline, index, vectors, logger, true, opts...)
}

// NewWithOptions creates the API controller with optional route
// initialization. Set initializeRoutes to false in tests that drive
// handlers directly.
func NewWithOptions(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	decoder *audio.Decoder, orchestrator *search.Orchestrator, pipeline *ingest.Pipeline,
	index *olaf.Index, vectors *vecstore.Store,
	logger *log.Logger, initializeRoutes bool, opts ...Option) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:         e,
		DS:           ds,
		Settings:     settings,
		decoder:      decoder,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		fingerprints: index,
		vectors:      vectors,
		blobs:        ingest.NewBlobStore(settings),
		buildInfo:    &buildinfo.Context{},
		logger:       logger,
		trackCache:   cache.New(trackCacheTTL, trackCacheSweep),
	}

	// Initialize structured logger for API requests
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: Failed to initialize API structured logger: %v", err)
		// Fallback to a disabled logger (writes to io.Discard) but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
		logger.Printf("API structured logging initialized to %s", apiLogPath)
	}

	for _, opt := range opts {
		opt(c)
	}

	// Every error leaving a handler, including echo's own routing and
	// body-limit errors, renders in the documented error body shape.
	e.HTTPErrorHandler = c.httpErrorHandler

	e.Use(c.LoggingMiddleware())

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.RequestID())
	if len(settings.HTTP.CorsOrigins) > 0 {
		c.Group.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: settings.HTTP.CorsOrigins,
		}))
	} else {
		c.Group.Use(middleware.CORS())
	}

	now := time.Now()
	c.startTime = &now

	if initializeRoutes {
		c.initRoutes()
	}

	return c, nil
}

// LoggingMiddleware logs every request through the structured API logger.
// Health and metrics probes poll frequently and are excluded.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			path := ctx.Request().URL.Path
			if path == "/health" || path == "/metrics" {
				return next(ctx)
			}

			start := time.Now()
			err := next(ctx)

			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()

			// LogAttrs avoids allocations when the level is disabled.
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}

			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible, outside the API group
	c.Echo.GET("/health", c.HealthCheck)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"search routes", c.initSearchRoutes},
		{"ingest routes", c.initIngestRoutes},
		{"track routes", c.initTrackRoutes},
		{"version routes", c.initVersionRoutes},
	}

	for _, initializer := range routeInitializers {
		c.Debug("Initializing %s...", initializer.name)

		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Printf("PANIC during %s initialization: %v", initializer.name, r)
				}
			}()

			initializer.fn()
		}()
	}
}

// Shutdown releases controller resources. Called when the server drains.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}

	// go-cache's janitor goroutine cannot be stopped; flush entries so
	// they do not pin memory while the process drains.
	if c.trackCache != nil {
		c.trackCache.Flush()
	}

	c.Debug("API controller shut down")
}

// Debug logs debug messages when debug mode is enabled.
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)

		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// logAPIRequest logs handler-level events with common request context.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	if c.apiLogger == nil {
		return
	}

	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)

	c.apiLogger.Log(ctx.Request().Context(), level, msg, baseAttrs...)
}
