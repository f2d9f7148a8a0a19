package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
)

func serviceErrorResponse(t *testing.T, err error) (int, map[string]string) {
	t.Helper()

	rec := httptest.NewRecorder()
	HandleServiceError(rec, err, zap.NewNop())

	var body map[string]string
	if decodeErr := json.NewDecoder(rec.Body).Decode(&body); decodeErr != nil {
		t.Fatalf("failed to decode error body: %v", decodeErr)
	}
	return rec.Code, body
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperrors.NewValidation("name", "name is required"), http.StatusBadRequest, "validation_error"},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"stage completed", apperrors.ErrStageCompleted, http.StatusConflict, "stage_completed"},
		{"regeneration limit", apperrors.ErrRegenerationLimit, http.StatusConflict, "regeneration_limit"},
		{"backend failure", apperrors.NewBackend("speech", "audio transcription error", errors.New("boom")), http.StatusInternalServerError, "backend_error"},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := serviceErrorResponse(t, tc.err)
			if status != tc.status {
				t.Errorf("status = %d, want %d", status, tc.status)
			}
			if body["error"] != tc.code {
				t.Errorf("error code = %q, want %q", body["error"], tc.code)
			}
		})
	}
}

func TestHandleServiceError_BackendCauseNotLeaked(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:443: connection refused")
	status, body := serviceErrorResponse(t, apperrors.NewBackend("notion", "", cause))

	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", status, http.StatusInternalServerError)
	}
	if body["message"] != "An upstream service failed" {
		t.Errorf("message = %q, want the generic fallback", body["message"])
	}
}
