package handler

import (
	"context"
	"log/slog"
	"net/http"

	"postraft-facade/internal/logger"
	"postraft-facade/internal/resource"
)

// dashboardSections lists every section reported in a dashboard response.
var dashboardSections = []string{
	resource.SectionStats,
	resource.SectionProducts,
	resource.SectionTemplates,
	resource.SectionPosters,
}

// DashboardService assembles the dashboard overview.
type DashboardService interface {
	Overview(ctx context.Context) (*resource.Overview, error)
}

// SectionResult is the outcome of one dashboard section.
type SectionResult struct {
	StatusCode int              `json:"status_code"`
	Error      *NormalizedError `json:"error,omitempty"`
}

// DashboardResponse is the overview plus the per-section outcome.
type DashboardResponse struct {
	*resource.Overview
	Sections map[string]*SectionResult `json:"sections"`
}

// DashboardHandler serves /v1/dashboard.
type DashboardHandler struct {
	dashboard DashboardService
	logger    *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboard DashboardService, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// ServeHTTP handles the overview request. A section that failed is reported
// in Sections while the rest of the overview is still served.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	overview, err := h.dashboard.Overview(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	requestID := logger.RequestID(r.Context())
	sections := make(map[string]*SectionResult, len(dashboardSections))
	for _, name := range dashboardSections {
		sectionErr, failed := overview.Errors[name]
		if !failed {
			sections[name] = &SectionResult{StatusCode: http.StatusOK}
			continue
		}
		h.logger.WarnContext(r.Context(), "dashboard section failed", "section", name, "error", sectionErr)
		status, normalized := NormalizeError(sectionErr, requestID)
		sections[name] = &SectionResult{StatusCode: status, Error: normalized}
	}

	writeJSON(w, http.StatusOK, DashboardResponse{Overview: overview, Sections: sections})
}
