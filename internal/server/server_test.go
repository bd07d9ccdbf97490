package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprint/soundprint/internal/conf"
)

func testSettings(host, port string) *conf.Settings {
	settings := &conf.Settings{}
	settings.HTTP.Host = host
	settings.HTTP.Port = port
	return settings
}

func TestAddr(t *testing.T) {
	s := New(testSettings("0.0.0.0", "17010"))
	assert.Equal(t, "0.0.0.0:17010", s.Addr())
}

func TestStartServesAndShutsDownGracefully(t *testing.T) {
	s := New(testSettings("127.0.0.1", "0"))
	s.Echo.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	errChan := s.Start()

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = s.Echo.ListenerAddr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond, "listener should come up")

	resp, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case startErr := <-errChan:
		t.Fatalf("graceful shutdown must not report a start error, got %v", startErr)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartReportsBindFailure(t *testing.T) {
	// Occupy a port so the server cannot bind it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)

	s := New(testSettings("127.0.0.1", port))
	errChan := s.Start()

	select {
	case startErr := <-errChan:
		require.Error(t, startErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a bind failure on the error channel")
	}
}
