// Package server provides the HTTP server setup for the local facade.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/handler"
	"postraft-facade/internal/middleware"
	"postraft-facade/internal/resilience"
	"postraft-facade/internal/resource"
)

// ServiceName is reported by /health.
const ServiceName = "postraft-facade"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Session string `json:"session"`
}

// Sessions is the session manager as used by the facade routes.
type Sessions interface {
	handler.SessionService
	middleware.SessionSource
}

// StatsSource reports cache counters.
type StatsSource interface {
	Stats() cache.CacheStats
}

// Config holds server dependencies and settings.
type Config struct {
	Sessions      Sessions
	Resources     *resource.Services
	Cache         StatsSource
	Breaker       *resilience.CircuitBreaker
	Notifications handler.NotificationSource
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// ReadyTimeout bounds how long protected routes wait for hydration.
	ReadyTimeout time.Duration
}

// NewServer creates the facade handler.
func NewServer(cfg Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	guard := middleware.NewRouteGuard(cfg.Sessions, logger, cfg.ReadyTimeout).Wrap

	// Register health endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, HealthResponse{
			Status:  "healthy",
			Service: ServiceName,
			Session: cfg.Sessions.Snapshot().State.String(),
		})
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	// Register stats endpoint for monitoring the cache and the breaker
	mux.HandleFunc("GET /v1/facade/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := FacadeStats{}
		if cfg.Cache != nil {
			s := cfg.Cache.Stats()
			stats.Cache = &s
		}
		if cfg.Breaker != nil {
			s := cfg.Breaker.Stats()
			stats.CircuitBreaker = &s
		}
		writeJSON(w, stats)
	})

	handler.NewSessionHandler(cfg.Sessions, logger).Register(mux)
	mux.Handle("GET /v1/notifications", handler.NewNotificationHandler(cfg.Notifications))

	handler.NewProductHandler(cfg.Resources.Products, logger).Register(mux, guard)
	handler.NewTemplateHandler(cfg.Resources.Templates).Register(mux, guard)
	handler.NewPosterHandler(cfg.Resources.Posters).Register(mux, guard)
	mux.Handle("GET /v1/dashboard", guard(handler.NewDashboardHandler(cfg.Resources.Dashboard, logger)))
	handler.NewWatchHandler(cfg.Resources, logger).Register(mux, guard)

	// Support HTTP/2 without TLS (h2c) for local UIs that multiplex requests
	return h2c.NewHandler(middleware.RequestID(logger)(mux), &http2.Server{})
}

// FacadeStats holds statistics about the cache and the circuit breaker.
type FacadeStats struct {
	Cache          *cache.CacheStats               `json:"cache,omitempty"`
	CircuitBreaker *resilience.CircuitBreakerStats `json:"circuit_breaker,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
