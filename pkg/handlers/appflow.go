package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// AppFlowHandler streams app-flow document generation.
type AppFlowHandler struct {
	appFlowService services.AppFlowService
	logger         *zap.Logger
}

// NewAppFlowHandler creates a new app-flow handler.
func NewAppFlowHandler(appFlowService services.AppFlowService, logger *zap.Logger) *AppFlowHandler {
	return &AppFlowHandler{appFlowService: appFlowService, logger: logger}
}

// RegisterRoutes registers the app-flow handler's routes on the given mux.
func (h *AppFlowHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/app-flow",
		authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(h.Generate)))
}

// Generate handles POST /api/projects/{pid}/epics/{eid}/app-flow
// The document streams back as raw text chunks. If the client
// disconnects mid-stream, generation finishes server-side and the
// artifact is still persisted. Pass ?regenerate=true to regenerate,
// subject to the project's plan.
func (h *AppFlowHandler) Generate(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}
	regenerate := r.URL.Query().Get("regenerate") == "true"

	relay, err := stream.NewRelay(w, r, h.logger)
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported by this connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Precondition failures happen before any chunk is written, so a
	// normal error response is still possible.
	if _, err := h.appFlowService.Generate(r.Context(), epicID, relay, regenerate); err != nil {
		if !relay.Wrote() {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Error("app-flow generation failed mid-stream",
			zap.String("epic_id", epicID.String()),
			zap.Error(err))
	}
}
