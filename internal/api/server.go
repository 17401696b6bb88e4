// Package api serves the admin surface of the gateway: health, the live
// activity stream, and the delivery audit trail. It never exposes event
// payloads or the signing secret.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/gateway"
)

// AuditReader exposes the delivery audit trail. Nil when auditing is
// disabled.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// StatsSource reports gateway activity counters.
type StatsSource interface {
	Snapshot() gateway.Stats
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server is the admin HTTP API server.
type Server struct {
	config    Config
	hub       *events.Hub
	audit     AuditReader
	stats     StatsSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. auditReader may be nil when the audit trail is
// disabled.
func New(config Config, hub *events.Hub, auditReader AuditReader, stats StatsSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		hub:       hub,
		audit:     auditReader,
		stats:     stats,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("events:ro", "events:rw", "*")).Get("/events", s.handleEvents)
		r.With(s.requireScopes("audit:ro", "audit:rw", "*")).Get("/audit/recent", s.handleAuditRecent)
		r.Get("/openapi.json", s.handleOpenAPI)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
