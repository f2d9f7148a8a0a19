package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
)

// AnalyzeHandler triggers the describe-and-arrange pass over an epic's
// screenshots.
type AnalyzeHandler struct {
	analyzeService services.AnalyzeService
	logger         *zap.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(analyzeService services.AnalyzeService, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzeService: analyzeService, logger: logger}
}

// RegisterRoutes registers the analyze handler's routes on the given mux.
func (h *AnalyzeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/analyze",
		authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(h.Analyze)))
}

// Analyze handles POST /api/projects/{pid}/epics/{eid}/analyze
// Pass ?regenerate=true to re-run analysis on a completed epic.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	regenerate := r.URL.Query().Get("regenerate") == "true"
	result, err := h.analyzeService.Analyze(r.Context(), epicID, regenerate)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
