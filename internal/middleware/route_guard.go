// Package middleware provides HTTP middleware for the facade: session gating
// and request identity.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/navigation"
)

// DefaultReadyTimeout bounds how long a request waits for session hydration.
const DefaultReadyTimeout = 10 * time.Second

// SessionSource is the part of the session manager the guard reads.
type SessionSource interface {
	Ready() <-chan struct{}
	Snapshot() domain.Session
}

// Redirect is the body sent alongside a 303 from the guard or a session handler.
type Redirect struct {
	Redirect string `json:"redirect"`
	Reason   string `json:"reason,omitempty"`
}

// RouteGuard gates protected routes on the session state.
type RouteGuard struct {
	sessions SessionSource
	logger   *slog.Logger
	timeout  time.Duration
}

// NewRouteGuard creates a guard. A zero timeout uses DefaultReadyTimeout.
func NewRouteGuard(sessions SessionSource, logger *slog.Logger, timeout time.Duration) *RouteGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &RouteGuard{sessions: sessions, logger: logger, timeout: timeout}
}

// Wrap returns a handler that waits for hydration, redirects anonymous
// callers to the login view and otherwise serves next with the session
// snapshot attached to the request context.
func (g *RouteGuard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.waitReady(r.Context()); err != nil {
			g.logger.WarnContext(r.Context(), "session not ready", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"code":         "SESSION_NOT_READY",
				"message":      "Session is still loading",
				"is_retryable": true,
				"retry_after":  1,
				"request_id":   logger.RequestID(r.Context()),
			})
			return
		}

		snap := g.sessions.Snapshot()
		if !snap.IsAuthenticated() {
			w.Header().Set("Location", navigation.PathLogin)
			writeJSON(w, http.StatusSeeOther, Redirect{Redirect: navigation.PathLogin, Reason: "unauthenticated"})
			return
		}

		next.ServeHTTP(w, r.WithContext(domain.WithSession(r.Context(), snap)))
	})
}

func (g *RouteGuard) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	select {
	case <-g.sessions.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
