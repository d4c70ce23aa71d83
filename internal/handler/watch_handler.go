package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/resource"
)

// watchKeepAlive is how often an idle stream sends a comment line.
const watchKeepAlive = 15 * time.Second

// WatchEvent is one server-sent state of a watched query.
type WatchEvent[T any] struct {
	Status     string           `json:"status"`
	Data       T                `json:"data,omitempty"`
	HasData    bool             `json:"has_data"`
	IsStale    bool             `json:"is_stale"`
	IsFetching bool             `json:"is_fetching"`
	UpdatedAt  *time.Time       `json:"updated_at,omitempty"`
	Error      *NormalizedError `json:"error,omitempty"`
}

// WatchHandler streams the state of cached queries as server-sent events.
// Each stream mounts an observer, so invalidations made by mutations reach
// the client as soon as the refetch settles.
type WatchHandler struct {
	resources *resource.Services
	logger    *slog.Logger
}

// NewWatchHandler creates a new watch handler.
func NewWatchHandler(resources *resource.Services, logger *slog.Logger) *WatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchHandler{resources: resources, logger: logger}
}

// Register mounts the watch routes on mux behind guard.
func (h *WatchHandler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/watch/products", guard(http.HandlerFunc(h.products)))
	mux.Handle("GET /v1/watch/products/{id}", guard(http.HandlerFunc(h.product)))
	mux.Handle("GET /v1/watch/templates", guard(http.HandlerFunc(h.templates)))
	mux.Handle("GET /v1/watch/posters", guard(http.HandlerFunc(h.posters)))
	mux.Handle("GET /v1/watch/posters/stats", guard(http.HandlerFunc(h.posterStats)))
}

func (h *WatchHandler) products(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	stream(w, r, h.logger, h.resources.Products.ObserveList(f))
}

func (h *WatchHandler) product(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	stream(w, r, h.logger, h.resources.Products.ObserveProduct(productID))
}

func (h *WatchHandler) templates(w http.ResponseWriter, r *http.Request) {
	format := domain.TemplateFormat(r.URL.Query().Get("format"))
	stream(w, r, h.logger, h.resources.Templates.ObserveList(format))
}

func (h *WatchHandler) posters(w http.ResponseWriter, r *http.Request) {
	f, err := posterFilter(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	stream(w, r, h.logger, h.resources.Posters.ObserveList(f))
}

func (h *WatchHandler) posterStats(w http.ResponseWriter, r *http.Request) {
	stream(w, r, h.logger, h.resources.Posters.ObserveStats())
}

// stream writes every state of obs until the client goes away or the cache
// is reset. A reset (sign-out) ends the stream with a "reset" event.
func stream[T any](w http.ResponseWriter, r *http.Request, log *slog.Logger, obs *cache.Observer[T]) {
	defer obs.Close()

	rc := http.NewResponseController(w)
	// streams outlive the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.WarnContext(r.Context(), "watch stream cannot flush", "error", err)
		return
	}

	requestID := logger.RequestID(r.Context())
	keepAlive := time.NewTicker(watchKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case s, ok := <-obs.Updates():
			if !ok {
				return
			}
			if s.Status == cache.StatusIdle && !s.HasData {
				_, _ = fmt.Fprint(w, "event: reset\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeEvent(w, toEvent(s, requestID)); err != nil {
				log.DebugContext(r.Context(), "watch stream closed", "key", obs.Key().String(), "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func toEvent[T any](s cache.State[T], requestID string) WatchEvent[T] {
	ev := WatchEvent[T]{
		Status:     s.Status.String(),
		HasData:    s.HasData,
		IsStale:    s.IsStale,
		IsFetching: s.IsFetching,
	}
	if s.HasData {
		ev.Data = s.Data
		updated := s.UpdatedAt
		ev.UpdatedAt = &updated
	}
	if s.Err != nil {
		_, ev.Error = NormalizeError(s.Err, requestID)
	}
	return ev
}

func writeEvent(w http.ResponseWriter, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
	return err
}
