package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// HandleServiceError maps a service-layer error onto an HTTP response.
// Backend causes are logged but never forwarded to the caller verbatim.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var status int
	var code, message string

	var validation *apperrors.ValidationError
	var backend *apperrors.BackendError

	switch {
	case errors.As(err, &validation):
		status, code, message = http.StatusBadRequest, "validation_error", validation.Error()
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "unauthorized", "Authentication required"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, apperrors.ErrNotionNotConnected):
		status, code, message = http.StatusNotFound, "notion_not_connected", "No Notion workspace is connected"
	case errors.Is(err, apperrors.ErrStageCompleted):
		status, code, message = http.StatusConflict, "stage_completed", "This pipeline stage is already completed"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "invalid_transition", "The epic is not in the right stage for this operation"
	case errors.Is(err, apperrors.ErrRegenerationLimit):
		status, code, message = http.StatusConflict, "regeneration_limit", "Regeneration limit reached for the current plan"
	case errors.Is(err, apperrors.ErrConflict):
		status, code, message = http.StatusConflict, "conflict", "The resource was modified concurrently"
	case errors.As(err, &backend):
		logger.Error("backend failure",
			zap.String("backend", backend.Backend),
			zap.Error(backend.Cause))
		status, code = http.StatusInternalServerError, "backend_error"
		message = backend.UserMessage
		if message == "" {
			message = "An upstream service failed"
		}
	default:
		logger.Error("unhandled service error", zap.Error(err))
		status, code, message = http.StatusInternalServerError, "internal_error", "Internal server error"
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
