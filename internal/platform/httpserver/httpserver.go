package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"kycflow/internal/platform/config"
)

// Server pairs the stdlib server with the shutdown budget it was configured
// with.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New builds an HTTP server from the configured timeouts. Zero values fall
// back to the stdlib defaults except ReadHeaderTimeout, which is always set.
func New(addr string, handler http.Handler, cfg config.HTTPConfig, logger *slog.Logger) *Server {
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeader,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		shutdownTimeout: shutdown,
		logger:          logger,
	}
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the shutdown budget. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	s.logger.InfoContext(ctx, "http server draining", "timeout", s.shutdownTimeout.String())
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
