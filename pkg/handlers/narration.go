package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
)

// maxAudioBytes caps one narration audio upload.
const maxAudioBytes = 25 << 20

// NarrationHandler handles backend-logic narration: audio recordings,
// free-text submissions, and stage completion.
type NarrationHandler struct {
	narrationService services.NarrationService
	logger           *zap.Logger
}

// NewNarrationHandler creates a new narration handler.
func NewNarrationHandler(narrationService services.NarrationService, logger *zap.Logger) *NarrationHandler {
	return &NarrationHandler{narrationService: narrationService, logger: logger}
}

// RegisterRoutes registers the narration handler's routes on the given mux.
func (h *NarrationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/backend-logic", guard(h.Submit))
	mux.HandleFunc("DELETE /api/projects/{pid}/epics/{eid}/backend-logic/audio", guard(h.DeleteAudio))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/backend-logic/complete", guard(h.Complete))
}

// Submit handles POST /api/projects/{pid}/epics/{eid}/backend-logic
// Multipart requests carry an "audio" part that is stored and
// transcribed; JSON requests carry {"text": ...} that is redistributed
// across the screens.
func (h *NarrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		h.submitAudio(w, r, epicID)
		return
	}
	h.submitText(w, r, epicID)
}

func (h *NarrationHandler) submitAudio(w http.ResponseWriter, r *http.Request, epicID uuid.UUID) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Expected multipart form data with an audio part"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Missing audio part"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer file.Close()

	epic, err := h.narrationService.UploadAudio(r.Context(), epicID, header.Filename, file)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *NarrationHandler) submitText(w http.ResponseWriter, r *http.Request, epicID uuid.UUID) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	epic, err := h.narrationService.SubmitText(r.Context(), epicID, body.Text)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteAudio handles DELETE /api/projects/{pid}/epics/{eid}/backend-logic/audio
func (h *NarrationHandler) DeleteAudio(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	epic, err := h.narrationService.DeleteAudio(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Complete handles POST /api/projects/{pid}/epics/{eid}/backend-logic/complete
func (h *NarrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	epic, err := h.narrationService.Complete(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
