// Package api provides the HTTP API server for the agent.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/xscape-dev/agent/internal/api/handlers"
	"github.com/xscape-dev/agent/internal/api/health"
	"github.com/xscape-dev/agent/internal/api/middleware"
	"github.com/xscape-dev/agent/internal/build"
	"github.com/xscape-dev/agent/internal/cache"
	"github.com/xscape-dev/agent/internal/simctl"
	"github.com/xscape-dev/agent/internal/state"
	"github.com/xscape-dev/agent/internal/toolchain"
	"github.com/xscape-dev/agent/pkg/config"
)

// Version is the current version of the agent.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         *state.Store
	cache         *cache.Cache
	builds        *build.Service
	simctl        *simctl.Client
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st *state.Store, c *cache.Cache, builds *build.Service, sim *simctl.Client, runner toolchain.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  st,
		cache:  c,
		builds: builds,
		simctl: sim,
		config: cfg,
		logger: logger,
	}

	s.healthChecker = health.NewChecker(runner, sim, Version)

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	syncHandler := handlers.NewSyncHandler(s.cache, s.logger)
	buildHandler := handlers.NewBuildHandler(s.builds, s.logger)
	simHandler := handlers.NewSimulatorHandler(s.store, s.simctl, s.logger)
	logsHandler := handlers.NewLogsHandler(s.store, s.logger)

	r.Group(func(r chi.Router) {
		// Each of these completes in bounded time; builds run in the
		// background after POST /build returns.
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/health", s.healthChecker.Handler())

		r.Post("/build", buildHandler.Start)
		r.Get("/build/{buildID}", buildHandler.Get)

		r.Route("/simulator", func(r chi.Router) {
			r.Get("/list", simHandler.List)
			r.Post("/boot", simHandler.Boot)
			r.Post("/shutdown", simHandler.Shutdown)
			r.Post("/run", simHandler.Run)
		})
	})

	// Uploads run up to the 512 MiB form limit and extraction happens
	// inline, so the sync route gets its own, much larger bound.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Minute))
		r.Post("/sync-project", syncHandler.Sync)
	})

	// WebSocket streams stay open for the lifetime of a build, so the
	// request timeout does not apply here.
	r.Get("/logs/{buildID}", logsHandler.Stream)

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("starting agent API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down agent API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
