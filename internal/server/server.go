// Package server owns the HTTP listener lifecycle: it builds the Echo
// instance the API controller attaches to, starts it in the background
// and shuts it down gracefully on request.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
)

// shutdownTimeout bounds how long in-flight requests may run once a
// shutdown begins.
const shutdownTimeout = 10 * time.Second

// Server wraps the Echo instance with start and shutdown plumbing.
type Server struct {
	Echo     *echo.Echo
	settings *conf.Settings
	errChan  chan error
}

// New builds the server around a fresh Echo instance. Routes are attached
// by the API controller before Start is called.
func New(settings *conf.Settings) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &Server{
		Echo:     e,
		settings: settings,
		errChan:  make(chan error, 1),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.settings.HTTP.Host, s.settings.HTTP.Port)
}

// Start begins serving in a background goroutine and returns immediately.
// The returned channel yields the listen error when the server fails to
// come up or dies; a graceful shutdown never sends on it.
func (s *Server) Start() <-chan error {
	go func() {
		if err := s.Echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errChan <- errors.New(err).
				Component("server").
				Category(errors.CategoryNetwork).
				Context("addr", s.Addr()).
				Build()
		}
	}()
	return s.errChan
}

// Shutdown drains in-flight requests and stops the listener. The parent
// context is honored but capped by the shutdown timeout so a stuck
// request cannot hold the process open.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.Echo.Shutdown(ctx)
}
