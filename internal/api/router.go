// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/middleware"
)

const (
	defaultRateLimitReqs   = 300
	defaultRateLimitWindow = time.Minute
)

// NewRouter assembles the chi router: global middleware, the versioned API
// routes, health endpoints and the Prometheus scrape target.
func NewRouter(h *Handler, cfg *config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(corsHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Prometheus)
		r.Use(rateLimiter(cfg))

		r.Post("/track", h.Track)
		r.Get("/events", h.Events)
		r.Get("/heatmap", h.Heatmap)
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", h.AnalyticsSummary)
			r.Get("/cognitive-load", h.CognitiveLoad)
		})
		r.Post("/ai/suggest", h.Suggest)

		r.Get("/health", h.Health)
		r.Get("/health/live", h.Health)
		r.Get("/health/ready", h.Ready)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// corsHandler builds the CORS middleware. Origins default to none: the
// tracker usually posts same-origin, and cross-origin dashboards must be
// configured explicitly.
func corsHandler(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	var origins []string
	if cfg != nil {
		origins = cfg.CORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

// rateLimiter builds the per-IP request limiter for the API surface.
func rateLimiter(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	reqs := defaultRateLimitReqs
	window := defaultRateLimitWindow
	if cfg != nil {
		if cfg.RateLimitDisabled {
			return func(next http.Handler) http.Handler { return next }
		}
		if cfg.RateLimitReqs > 0 {
			reqs = cfg.RateLimitReqs
		}
		if cfg.RateLimitWindow > 0 {
			window = cfg.RateLimitWindow
		}
	}
	return httprate.LimitByIP(reqs, window)
}
