package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
)

// ProjectService defines the interface for project operations.
type ProjectService interface {
	// Ensure registers the project on first contact and returns it.
	// Existing projects keep their stored plan.
	Ensure(ctx context.Context, projectID uuid.UUID, orgSlug, name string) (*models.Project, error)

	// Get returns a project by its ID.
	Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	// UpdatePlan switches the project's billing tier.
	UpdatePlan(ctx context.Context, projectID uuid.UUID, plan models.Plan) (*models.Project, error)
}

type projectService struct {
	projectRepo repositories.ProjectRepository
	logger      *zap.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(projectRepo repositories.ProjectRepository, logger *zap.Logger) ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		logger:      logger.Named("project-service"),
	}
}

func (s *projectService) Ensure(ctx context.Context, projectID uuid.UUID, orgSlug, name string) (*models.Project, error) {
	orgSlug = strings.TrimSpace(orgSlug)
	if orgSlug == "" {
		return nil, apperrors.NewValidation("org_slug", "organization slug is required")
	}

	project := &models.Project{
		ID:      projectID,
		OrgSlug: orgSlug,
		Name:    name,
		Plan:    models.PlanFree,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}
	return s.projectRepo.Get(ctx, projectID)
}

func (s *projectService) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return s.projectRepo.Get(ctx, projectID)
}

func (s *projectService) UpdatePlan(ctx context.Context, projectID uuid.UUID, plan models.Plan) (*models.Project, error) {
	if err := s.projectRepo.UpdatePlan(ctx, projectID, plan); err != nil {
		return nil, err
	}

	s.logger.Info("project plan updated",
		zap.String("project_id", projectID.String()),
		zap.String("plan", string(plan)))

	return s.projectRepo.Get(ctx, projectID)
}

// Ensure projectService implements ProjectService at compile time.
var _ ProjectService = (*projectService)(nil)
