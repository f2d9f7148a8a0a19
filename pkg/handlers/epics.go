package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
)

// EpicsHandler handles epic lifecycle HTTP requests.
type EpicsHandler struct {
	epicService services.EpicService
	logger      *zap.Logger
}

// NewEpicsHandler creates a new epics handler.
func NewEpicsHandler(epicService services.EpicService, logger *zap.Logger) *EpicsHandler {
	return &EpicsHandler{epicService: epicService, logger: logger}
}

// RegisterRoutes registers the epics handler's routes on the given mux.
func (h *EpicsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	mux.HandleFunc("POST /api/projects/{pid}/epics", guard(h.Create))
	mux.HandleFunc("GET /api/projects/{pid}/epics", guard(h.List))
	mux.HandleFunc("GET /api/projects/{pid}/epics/{eid}", guard(h.Get))
	mux.HandleFunc("PATCH /api/projects/{pid}/epics/{eid}", guard(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}/epics/{eid}", guard(h.Delete))
}

type epicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Speciality  string `json:"speciality"`
}

// Create handles POST /api/projects/{pid}/epics
func (h *EpicsHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var body epicRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	epic, err := h.epicService.Create(r.Context(), projectID, body.Name, body.Description, body.Speciality)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects/{pid}/epics
func (h *EpicsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	epics, err := h.epicService.List(r.Context(), projectID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epics); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}/epics/{eid}
func (h *EpicsHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	epic, err := h.epicService.Get(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PATCH /api/projects/{pid}/epics/{eid}
func (h *EpicsHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body epicRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	epic, err := h.epicService.Update(r.Context(), epicID, body.Name, body.Description, body.Speciality)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, epic); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/epics/{eid}
func (h *EpicsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.epicService.Delete(r.Context(), epicID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
