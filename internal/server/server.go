// Package server assembles the reference collection server: SQLite
// storage, the REST handlers and the liveness websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/runsync/internal/server/handlers"
	"github.com/iudanet/runsync/internal/server/middleware"
	"github.com/iudanet/runsync/internal/server/storage/sqlite"
	"github.com/iudanet/runsync/pkg/api"
)

const readHeaderTimeout = 10 * time.Second

// Server serves the collection API
type Server struct {
	cfg     *Config
	logger  *slog.Logger
	store   *sqlite.Storage
	limiter *middleware.RateLimiter
	ws      *handlers.WSHandler
	handler http.Handler
}

// New opens the database and builds the handler chain
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		ws:     handlers.NewWSHandler(logger, cfg.PingInterval),
	}

	var h http.Handler = handlers.NewRouter(
		handlers.NewRecordsHandler(logger, store),
		handlers.NewHealthHandler(logger, store),
		s.ws,
	)
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, logger)
		h = middleware.RateLimitMiddleware(s.limiter, logger, api.PathWS, api.PathHealth)(h)
	}
	h = middleware.LoggingMiddleware(logger, api.PathHealth)(h)
	s.handler = middleware.RecoveryMiddleware(logger)(h)

	return s, nil
}

// Handler returns the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	// Websocket соединения перехвачены и не закрываются Shutdown
	srv.RegisterOnShutdown(s.ws.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close stops the rate limiter and closes the database
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.store.Close()
}
