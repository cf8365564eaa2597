// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/live"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/pipeline"
	"github.com/motrixlab/motrix/internal/recommend"
)

// EventCollector is the ingest surface the handlers drive.
type EventCollector interface {
	Collect(ctx context.Context, payload map[string]any) bool
	Metrics() pipeline.CollectionMetrics
}

// Recommender serves precomputed per-user recommendations.
type Recommender interface {
	Recommendations(ctx context.Context, userID string) []recommend.Item
}

// Pinger reports storage connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options collects the server's collaborators. Collector is required;
// the rest degrade to 503 on their routes when absent.
type Options struct {
	Server      *config.ServerConfig
	Security    *config.SecurityConfig
	Collector   EventCollector
	Hub         *live.Hub
	Recommender Recommender
	DB          Pinger
}

// Server is the HTTP boundary. It satisfies the supervisor's WebServer
// contract (ListenAndServe / Shutdown).
type Server struct {
	security    *config.SecurityConfig
	collector   EventCollector
	hub         *live.Hub
	recommender Recommender
	db          Pinger

	tokens *TokenManager
	ingest *userLimiter

	httpServer *http.Server
	startTime  time.Time
}

// New assembles the HTTP boundary from its collaborators.
func New(opts Options) (*Server, error) {
	if opts.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}

	security := opts.Security
	if security == nil {
		security = &config.SecurityConfig{}
	}

	s := &Server{
		security:    security,
		collector:   opts.Collector,
		hub:         opts.Hub,
		recommender: opts.Recommender,
		db:          opts.DB,
		startTime:   time.Now(),
	}

	if security.AuthEnabled {
		tokens, err := NewTokenManager(security)
		if err != nil {
			return nil, fmt.Errorf("token manager: %w", err)
		}
		s.tokens = tokens
	}
	s.ingest = newUserLimiter(security.PerUserRate, security.PerUserBurst)

	host, port, timeout := "0.0.0.0", 8087, 30*time.Second
	if opts.Server != nil {
		if opts.Server.Host != "" {
			host = opts.Server.Host
		}
		if opts.Server.Port > 0 {
			port = opts.Server.Port
		}
		if opts.Server.Timeout > 0 {
			timeout = opts.Server.Timeout
		}
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Handler(),
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler builds the chi route tree. Exposed separately so tests can
// drive the full middleware stack with httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global stack, in order: request id first so every later log line
	// can carry it, then client IP recovery, panic recovery, CORS
	// (global so OPTIONS preflight is answered everywhere).
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.corsHandler())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", s.handleHealthLive)
		r.Get("/ready", s.handleHealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter())
		r.Use(instrument)
		r.Use(s.authenticate)

		r.With(s.limitIngest).Post("/events", s.handleIngest)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/recommendations/{userID}", s.handleRecommendations)
		r.Get("/events/live", s.handleLiveFeed)
	})

	return r
}

// ListenAndServe runs the server until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	logging.Info().Str("addr", s.httpServer.Addr).Msg("SERVER: Listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// corsHandler builds the CORS middleware from the configured origins.
func (s *Server) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// rateLimiter builds the IP rate limiter for the API group.
func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	if s.security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	reqs, window := s.security.RateLimitReqs, s.security.RateLimitWindow
	if reqs <= 0 {
		reqs = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(reqs, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
		}),
	)
}
