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

// TenantMiddleware is a function that wraps a handler with tenant context.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ProjectResponse is the standard response for project endpoints.
type ProjectResponse struct {
	ID      string `json:"id"`
	OrgSlug string `json:"org_slug"`
	Name    string `json:"name,omitempty"`
	Plan    string `json:"plan"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	// Provisioning has no {pid} path segment; the tenant scope comes
	// from the JWT claims alone.
	mux.HandleFunc("POST /api/projects", authMiddleware.RequireAuth(tenantMiddleware(h.Provision)))

	mux.HandleFunc("GET /api/projects/{pid}",
		authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(h.Get)))
	mux.HandleFunc("PATCH /api/projects/{pid}/plan",
		authMiddleware.RequireAuthWithPathValidation("pid")(tenantMiddleware(h.UpdatePlan)))
}

// Provision handles POST /api/projects
// Registers the project from JWT claims. Idempotent; an existing project
// keeps its stored plan.
func (h *ProjectsHandler) Provision(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok || claims.ProjectID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_project_id", "Project ID required in token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	projectID, err := uuid.Parse(claims.ProjectID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format in token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	// The body is optional; a missing name just leaves it blank.
	_ = json.NewDecoder(r.Body).Decode(&body)

	project, err := h.projectService.Ensure(r.Context(), projectID, claims.OrgSlug, body.Name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, buildProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), projectID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, buildProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdatePlan handles PATCH /api/projects/{pid}/plan
func (h *ProjectsHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	project, err := h.projectService.UpdatePlan(r.Context(), projectID, models.Plan(body.Plan))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, buildProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func buildProjectResponse(project *models.Project) ProjectResponse {
	return ProjectResponse{
		ID:      project.ID.String(),
		OrgSlug: project.OrgSlug,
		Name:    project.Name,
		Plan:    string(project.Plan),
	}
}
