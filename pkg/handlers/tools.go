package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// ToolResponse describes one advanced tool to the client.
type ToolResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ToolsHandler streams advanced-tool generation (user stories, test
// plans) and lists the available tools.
type ToolsHandler struct {
	toolService services.ToolService
	logger      *zap.Logger
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(toolService services.ToolService, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{toolService: toolService, logger: logger}
}

// RegisterRoutes registers the tools handler's routes on the given mux.
func (h *ToolsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	mux.HandleFunc("GET /api/projects/{pid}/tools", authMiddleware.RequireAuthWithPathValidation("pid")(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/tools/{tool}", guard(h.Generate))
}

// List handles GET /api/projects/{pid}/tools
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	tools := h.toolService.ListTools()
	out := make([]ToolResponse, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolResponse{ID: t.ID, Name: t.Name})
	}

	if err := WriteJSON(w, http.StatusOK, out); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Generate handles POST /api/projects/{pid}/epics/{eid}/tools/{tool}
// The tool output streams back as raw text chunks and is persisted as
// the epic's artifact under the tool's sub-scope. Pass ?regenerate=true
// to regenerate, subject to the project's plan.
func (h *ToolsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}
	toolID := r.PathValue("tool")
	regenerate := r.URL.Query().Get("regenerate") == "true"

	relay, err := stream.NewRelay(w, r, h.logger)
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported by this connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if _, err := h.toolService.Generate(r.Context(), epicID, toolID, relay, regenerate); err != nil {
		if !relay.Wrote() {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Error("tool generation failed mid-stream",
			zap.String("epic_id", epicID.String()),
			zap.String("tool", toolID),
			zap.Error(err))
	}
}
