package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/platform/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNew_AppliesTimeouts(t *testing.T) {
	s := New(":0", http.NotFoundHandler(), config.HTTPConfig{
		ReadTimeout:  time.Second,
		WriteTimeout: 2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 5*time.Second, s.srv.ReadHeaderTimeout)
	assert.Equal(t, time.Second, s.srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, s.srv.WriteTimeout)
	assert.Equal(t, 10*time.Second, s.shutdownTimeout)
	assert.NotNil(t, s.srv.ErrorLog)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	addr := freeAddr(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := New(addr, handler, config.HTTPConfig{ShutdownTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ReportsListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := New(l.Addr().String(), http.NotFoundHandler(), config.HTTPConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, s.Run(context.Background()))
}
