package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
)

// maxUploadBytes caps one multipart upload request (all screenshots).
const maxUploadBytes = 100 << 20

// FilesHandler handles design-file HTTP requests: screenshot intake,
// listing, deletion, and manual rearrangement.
type FilesHandler struct {
	uploadService services.UploadService
	logger        *zap.Logger
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(uploadService services.UploadService, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{uploadService: uploadService, logger: logger}
}

// RegisterRoutes registers the files handler's routes on the given mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/files", guard(h.Upload))
	mux.HandleFunc("GET /api/projects/{pid}/epics/{eid}/files", guard(h.List))
	mux.HandleFunc("DELETE /api/projects/{pid}/epics/{eid}/files/{fid}", guard(h.Delete))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/files/bulk-delete", guard(h.BulkDelete))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/files/reorder", guard(h.Reorder))
}

// Upload handles POST /api/projects/{pid}/epics/{eid}/files
// Accepts multipart form data with one or more "files" parts.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Expected multipart form data with files"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	parts := r.MultipartForm.File["files"]
	uploads := make([]services.UploadedFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Could not read uploaded file"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		defer f.Close()
		uploads = append(uploads, services.UploadedFile{Filename: part.Filename, Data: f})
	}

	files, err := h.uploadService.UploadFiles(r.Context(), epicID, uploads)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, files); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects/{pid}/epics/{eid}/files
// Files come back in pipeline order: main screens by position, each
// followed by its sub-screens.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	files, err := h.uploadService.ListFiles(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, files); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/epics/{eid}/files/{fid}
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.uploadService.DeleteFile(r.Context(), epicID, fileID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	FileIDs []uuid.UUID `json:"file_ids"`
}

// BulkDelete handles POST /api/projects/{pid}/epics/{eid}/files/bulk-delete
func (h *FilesHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.uploadService.DeleteFiles(r.Context(), epicID, body.FileIDs); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	Files []struct {
		ID         uuid.UUID  `json:"id"`
		ParentID   *uuid.UUID `json:"parent_id"`
		OrderIndex int        `json:"order_index"`
	} `json:"files"`
}

// Reorder handles POST /api/projects/{pid}/epics/{eid}/files/reorder
// Applies a drag-and-drop rearrangement as one atomic batch.
func (h *FilesHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	rewrites := make([]models.FileRewrite, 0, len(body.Files))
	for _, f := range body.Files {
		rw := models.FileRewrite{FileID: f.ID, OrderIndex: f.OrderIndex}
		if f.ParentID != nil {
			rw.ParentID = *f.ParentID
		}
		rewrites = append(rewrites, rw)
	}

	if err := h.uploadService.Reorder(r.Context(), epicID, rewrites); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	files, err := h.uploadService.ListFiles(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, files); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
