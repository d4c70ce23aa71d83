package handler

import (
	"context"
	"net/http"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resource"
)

// PosterService is poster generation as seen by the facade.
type PosterService interface {
	List(ctx context.Context, f resource.PosterFilter) (*domain.PosterPage, error)
	Get(ctx context.Context, posterID int64) (*domain.Poster, error)
	Delete(ctx context.Context, posterID int64) error
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationJob, error)
	JobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
	Stats(ctx context.Context) (*domain.GenerationStats, error)
}

// PosterHandler serves /v1/posters.
type PosterHandler struct {
	posters PosterService
}

// NewPosterHandler creates a new poster handler.
func NewPosterHandler(posters PosterService) *PosterHandler {
	return &PosterHandler{posters: posters}
}

// Register mounts the poster routes on mux behind guard.
func (h *PosterHandler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/posters", guard(http.HandlerFunc(h.list)))
	mux.Handle("GET /v1/posters/stats", guard(http.HandlerFunc(h.stats)))
	mux.Handle("POST /v1/posters/generate", guard(http.HandlerFunc(h.generate)))
	mux.Handle("GET /v1/posters/jobs/{jobID}", guard(http.HandlerFunc(h.jobStatus)))
	mux.Handle("GET /v1/posters/{id}", guard(http.HandlerFunc(h.get)))
	mux.Handle("DELETE /v1/posters/{id}", guard(http.HandlerFunc(h.delete)))
}

func (h *PosterHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := posterFilter(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := h.posters.List(r.Context(), f)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func posterFilter(r *http.Request) (resource.PosterFilter, error) {
	var (
		f   resource.PosterFilter
		err error
	)
	if f.ProductID, err = queryID(r, "product_id"); err != nil {
		return f, err
	}
	if f.TemplateID, err = queryID(r, "template_id"); err != nil {
		return f, err
	}
	if f.CampaignID, err = queryID(r, "campaign_id"); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.PerPage, err = queryInt(r, "per_page"); err != nil {
		return f, err
	}
	switch status := domain.PosterStatus(r.URL.Query().Get("status")); status {
	case "", domain.PosterGenerating, domain.PosterGenerated, domain.PosterFailed:
		f.Status = status
	default:
		return f, badRequest("invalid status")
	}
	return f, nil
}

func (h *PosterHandler) get(w http.ResponseWriter, r *http.Request) {
	posterID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	poster, err := h.posters.Get(r.Context(), posterID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poster)
}

func (h *PosterHandler) delete(w http.ResponseWriter, r *http.Request) {
	posterID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.posters.Delete(r.Context(), posterID); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PosterHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	job, err := h.posters.Generate(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *PosterHandler) jobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.posters.JobStatus(r.Context(), r.PathValue("jobID"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *PosterHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.posters.Stats(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
