package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
)

// notionStateSession names the cookie session carrying the OAuth
// anti-forgery state between connect and callback.
const notionStateSession = "notion-oauth"

// NotionHandler manages the Notion workspace connection and exports.
type NotionHandler struct {
	notionService services.NotionService
	sessions      *sessions.CookieStore
	logger        *zap.Logger
}

// NewNotionHandler creates a new Notion handler. sessionSecret signs the
// OAuth state cookie.
func NewNotionHandler(notionService services.NotionService, sessionSecret string, logger *zap.Logger) *NotionHandler {
	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/api",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &NotionHandler{
		notionService: notionService,
		sessions:      store,
		logger:        logger,
	}
}

// RegisterRoutes registers the Notion handler's routes on the given mux.
func (h *NotionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	guard := func(handler http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(handler))
	}

	// Connect only builds a redirect URL; it needs no tenant scope.
	mux.HandleFunc("GET /api/projects/{pid}/notion/connect",
		authMiddleware.RequireAuthWithPathValidation("pid")(h.Connect))

	mux.HandleFunc("GET /api/projects/{pid}/notion/callback", guard(h.Callback))
	mux.HandleFunc("GET /api/projects/{pid}/notion", guard(h.GetIntegration))
	mux.HandleFunc("DELETE /api/projects/{pid}/notion", guard(h.Disconnect))
	mux.HandleFunc("GET /api/projects/{pid}/notion/databases", guard(h.ListDatabases))
	mux.HandleFunc("POST /api/projects/{pid}/notion/databases", guard(h.SaveMappings))
	mux.HandleFunc("POST /api/projects/{pid}/epics/{eid}/notion-export", guard(h.Export))
}

// Connect handles GET /api/projects/{pid}/notion/connect
// Returns the Notion OAuth consent URL and plants the anti-forgery
// state in a signed cookie.
func (h *NotionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, ok := ParseProjectID(w, r, h.logger); !ok {
		return
	}

	state := uuid.NewString()
	session, _ := h.sessions.Get(r, notionStateSession)
	session.Values["state"] = state
	if err := session.Save(r, w); err != nil {
		h.logger.Error("Failed to save state session", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Could not start the connect flow"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{
		"authorize_url": h.notionService.AuthorizeURL(state),
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Callback handles GET /api/projects/{pid}/notion/callback
// Exchanges the authorization code once the state matches the cookie.
func (h *NotionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	session, _ := h.sessions.Get(r, notionStateSession)
	expected, _ := session.Values["state"].(string)
	if expected == "" || r.URL.Query().Get("state") != expected {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_state", "OAuth state mismatch"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// The state is single-use.
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.logger.Warn("Failed to clear state session", zap.Error(err))
	}

	integration, err := h.notionService.HandleCallback(r.Context(), projectID, r.URL.Query().Get("code"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{
		"workspace_id":   integration.WorkspaceID,
		"workspace_name": integration.WorkspaceName,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetIntegration handles GET /api/projects/{pid}/notion
func (h *NotionHandler) GetIntegration(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	integration, err := h.notionService.GetIntegration(r.Context(), projectID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	// The access token never leaves the server.
	if err := WriteJSON(w, http.StatusOK, map[string]string{
		"workspace_id":   integration.WorkspaceID,
		"workspace_name": integration.WorkspaceName,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Disconnect handles DELETE /api/projects/{pid}/notion
func (h *NotionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.notionService.Disconnect(r.Context(), projectID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDatabases handles GET /api/projects/{pid}/notion/databases
func (h *NotionHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	databases, err := h.notionService.ListDatabases(r.Context(), projectID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, databases); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SaveMappings handles POST /api/projects/{pid}/notion/databases
func (h *NotionHandler) SaveMappings(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		EpicDatabaseID string `json:"epic_database_id"`
		TaskDatabaseID string `json:"task_database_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	mappings, err := h.notionService.SaveMappings(r.Context(), projectID, body.EpicDatabaseID, body.TaskDatabaseID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, mappings); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Export handles POST /api/projects/{pid}/epics/{eid}/notion-export
func (h *NotionHandler) Export(w http.ResponseWriter, r *http.Request) {
	_, epicID, ok := ParseProjectAndEpicIDs(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.notionService.Export(r.Context(), epicID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
