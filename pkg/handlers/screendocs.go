package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// ScreenDocsHandler streams per-screen documentation generation.
type ScreenDocsHandler struct {
	screenDocService services.ScreenDocService
	logger           *zap.Logger
}

// NewScreenDocsHandler creates a new screen-docs handler.
func NewScreenDocsHandler(screenDocService services.ScreenDocService, logger *zap.Logger) *ScreenDocsHandler {
	return &ScreenDocsHandler{screenDocService: screenDocService, logger: logger}
}

// RegisterRoutes registers the screen-docs handler's routes on the given mux.
func (h *ScreenDocsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/screen-docs", guard(h.GenerateAll))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/screen-docs/{fid}", guard(h.RegenerateOne))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/screen-docs/complete", guard(h.Complete))
}

// GenerateAll handles POST /api/projects/{pid}/epics/{eid}/screen-docs
// All undocumented screens stream back over one connection. Each
// screen's text is preceded by a marker line identifying the file; a
// failing screen emits an error marker and the run continues.
func (h *ScreenDocsHandler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	relay, err := stream.NewRelay(w, r, h.logger)
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported by this connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if _, err := h.screenDocService.GenerateAll(r.Context(), epicID, relay); err != nil {
		if !relay.Wrote() {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Error("screen doc run failed mid-stream",
			zap.String("epic_id", epicID.String()),
			zap.Error(err))
	}
}

// RegenerateOne handles POST /api/projects/{pid}/epics/{eid}/screen-docs/{fid}
// Regenerates a single screen's doc, subject to the project's plan.
func (h *ScreenDocsHandler) RegenerateOne(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	relay, err := stream.NewRelay(w, r, h.logger)
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported by this connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if _, err := h.screenDocService.RegenerateOne(r.Context(), epicID, fileID, relay); err != nil {
		if !relay.Wrote() {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Error("screen doc regeneration failed mid-stream",
			zap.String("epic_id", epicID.String()),
			zap.String("file_id", fileID.String()),
			zap.Error(err))
	}
}

// Complete handles POST /api/projects/{pid}/epics/{eid}/screen-docs/complete
func (h *ScreenDocsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	epic, err := h.screenDocService.Complete(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
