// Package navigation carries redirect decisions from the session manager to
// whatever is rendering: an HTTP response, a terminal, or a test.
package navigation

import (
	"context"
	"log/slog"
	"sync"
)

// Well-known destinations.
const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
)

// Navigator receives redirect decisions.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// Slot holds the redirect requested while serving one request. Only the
// first decision is kept.
type Slot struct {
	mu   sync.Mutex
	path string
}

// Path returns the requested destination, or "" when none was made.
func (s *Slot) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Slot) set(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		return false
	}
	s.path = path
	return true
}

type slotKey struct{}

// WithSlot attaches an empty Slot to ctx.
func WithSlot(ctx context.Context) (context.Context, *Slot) {
	s := &Slot{}
	return context.WithValue(ctx, slotKey{}, s), s
}

// SlotFromContext returns the Slot attached by WithSlot.
func SlotFromContext(ctx context.Context) (*Slot, bool) {
	s, ok := ctx.Value(slotKey{}).(*Slot)
	return s, ok
}

// ContextNavigator writes decisions into the request's Slot. Decisions made
// without a Slot (background hydration, 401 from a shared fetch) are logged
// and left to the route guard.
type ContextNavigator struct {
	Logger *slog.Logger
}

func (n ContextNavigator) Navigate(ctx context.Context, path string) {
	if s, ok := SlotFromContext(ctx); ok {
		if !s.set(path) {
			n.logger().DebugContext(ctx, "navigation already decided", "ignored", path, "kept", s.Path())
		}
		return
	}
	n.logger().DebugContext(ctx, "navigation without a request", "path", path)
}

func (n ContextNavigator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Recorder remembers every decision in order.
type Recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *Recorder) Navigate(_ context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

// Paths returns a copy of the recorded destinations.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Func adapts a function to Navigator.
type Func func(ctx context.Context, path string)

func (f Func) Navigate(ctx context.Context, path string) { f(ctx, path) }
