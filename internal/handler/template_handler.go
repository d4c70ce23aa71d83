package handler

import (
	"context"
	"net/http"

	"postraft-facade/internal/domain"
)

// TemplateService is the template library as seen by the facade.
type TemplateService interface {
	List(ctx context.Context, format domain.TemplateFormat) ([]domain.Template, error)
	Get(ctx context.Context, templateID int64) (*domain.Template, error)
	Create(ctx context.Context, in domain.TemplateInput) (*domain.Template, error)
	Update(ctx context.Context, templateID int64, in domain.TemplateInput) (*domain.Template, error)
	Delete(ctx context.Context, templateID int64) error
	Duplicate(ctx context.Context, templateID int64) (*domain.Template, error)
}

// TemplateHandler serves /v1/templates.
type TemplateHandler struct {
	templates TemplateService
}

// NewTemplateHandler creates a new template handler.
func NewTemplateHandler(templates TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// Register mounts the template routes on mux behind guard.
func (h *TemplateHandler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/templates", guard(http.HandlerFunc(h.list)))
	mux.Handle("POST /v1/templates", guard(http.HandlerFunc(h.create)))
	mux.Handle("GET /v1/templates/{id}", guard(http.HandlerFunc(h.get)))
	mux.Handle("PUT /v1/templates/{id}", guard(http.HandlerFunc(h.update)))
	mux.Handle("DELETE /v1/templates/{id}", guard(http.HandlerFunc(h.delete)))
	mux.Handle("POST /v1/templates/{id}/duplicate", guard(http.HandlerFunc(h.duplicate)))
}

func (h *TemplateHandler) list(w http.ResponseWriter, r *http.Request) {
	format := domain.TemplateFormat(r.URL.Query().Get("format"))
	templates, err := h.templates.List(r.Context(), format)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TemplateList{Templates: templates})
}

func (h *TemplateHandler) get(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	tmpl, err := h.templates.Get(r.Context(), templateID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *TemplateHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	tmpl, err := h.templates.Create(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (h *TemplateHandler) update(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var in domain.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	tmpl, err := h.templates.Update(r.Context(), templateID, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *TemplateHandler) delete(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.templates.Delete(r.Context(), templateID); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) duplicate(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	tmpl, err := h.templates.Duplicate(r.Context(), templateID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}
