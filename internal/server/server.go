// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// cmd/mealtrack creates:
//
//	config.Config → OpenStore → repository.Store
//	Server.New() creates: TokenService → services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/mealtrack/internal/auth"
	"github.com/sakif/mealtrack/internal/config"
	"github.com/sakif/mealtrack/internal/handler"
	"github.com/sakif/mealtrack/internal/middleware"
	"github.com/sakif/mealtrack/internal/repository"
	"github.com/sakif/mealtrack/internal/repository/postgres"
	sqliteRepo "github.com/sakif/mealtrack/internal/repository/sqlite"
	"github.com/sakif/mealtrack/internal/service"
)

// OpenStore connects to the database named by databaseURL.
//
// postgres:// and postgresql:// URLs open the PostgreSQL store; anything else
// is a SQLite file path (or ":memory:"). The SQLite file's directory is
// created if it doesn't exist yet. Both stores create their schema on open.
//
// IMPORT ALIAS:
// repository/sqlite is imported as `sqliteRepo` to avoid confusion with the
// sqlite driver package.
func OpenStore(ctx context.Context, databaseURL string) (repository.Store, error) {
	cfg := config.Config{DatabaseURL: databaseURL}
	if cfg.UsesPostgres() {
		db, err := postgres.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if databaseURL != ":memory:" {
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(databaseURL), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(databaseURL)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. When the server shuts down, the store is closed
// last, after in-flight requests have finished with it.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *middleware.Metrics
	limiter *middleware.LoginLimiter
}

// New creates a Server around an already opened store.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Create the token service from the JWT secret
//  2. Create the services with the store (as repository interfaces)
//  3. Create the handlers with the services
//  4. Wire handlers to routes
//
// Each layer only receives what it needs:
// - Services get repository interfaces (not the concrete store)
// - Handlers get services (not the repositories)
func New(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	metrics := middleware.NewMetrics()

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics,
		limiter: middleware.NewLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst, metrics, logger),
	}
	s.setupRoutes(tokens)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                    → Store health check
// GET    /metrics                    → Prometheus metrics
// POST   /api/auth/login             → Login (rate limited per IP)
// GET    /api/meals                  → List meals            [auth]
// POST   /api/meals                  → Create meal           [auth]
// POST   /api/meals/{id}/glucose     → Add glucose reading   [auth]
// GET    /api/stats/daily            → Today's stats         [auth]
// GET    /api/stats/daily/{date}     → Stats for a day       [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: only with trust_proxy; takes the client IP from proxy headers
//  3. Logger: logs each request with timing info
//  4. Recoverer: catches panics and returns 500 instead of crashing
//  5. Instrument: Prometheus request counters and latency
//
// Logger sits outside Recoverer so a panicking request is still logged, as a 500.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)

	// PROXY HEADERS:
	// RealIP rewrites r.RemoteAddr from X-Forwarded-For, a header the client
	// controls unless a proxy in front overwrites it. The login limiter keys
	// on RemoteAddr.
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.metrics.Instrument)

	// === Operational Routes ===
	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === API Routes ===
	// DEPENDENCY CHAIN:
	//   s.store → implements the repository interfaces
	//   services receive the repository interfaces
	//   handlers receive the services
	authService := service.NewAuthService(s.store, tokens, s.logger)
	mealService := service.NewMealService(s.store, s.store, s.config.MaxImageDimension, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.metrics, s.logger)
	mealHandler := handler.NewMealHandler(mealService, s.metrics, s.config.MaxUploadBytes, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// CORS:
		// Browsers send a preflight OPTIONS before a cross-origin POST with an
		// Authorization header. The cors handler answers it here, before auth,
		// since preflights never carry the token.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.With(s.limiter.Handler).Post("/auth/login", authHandler.HandleLogin)

		// Everything below needs a valid bearer token.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/meals", mealHandler.HandleList)
			r.Post("/meals", mealHandler.HandleCreate)
			r.Post("/meals/{id}/glucose", mealHandler.HandleAddGlucoseReading)
			r.Get("/stats/daily", mealHandler.HandleDailyStats)
			r.Get("/stats/daily/{date}", mealHandler.HandleDailyStats)
		})
	})
}

// Handler returns the fully wired router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (ShutdownTimeout)
// 3. Close the store (flushes SQLite's WAL or drains the Postgres pool)
//
// The `defer s.store.Close()` ensures step 3 happens however Start returns.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	// Forget idle rate limiter entries in the background until we stop.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // photo uploads on slow mobile links
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Bool("postgres", s.config.UsesPostgres()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
