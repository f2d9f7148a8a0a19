package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
)

// EpicService defines the interface for pipeline-unit operations.
type EpicService interface {
	// Create starts a new epic in the draft stage.
	Create(ctx context.Context, projectID uuid.UUID, name, description, speciality string) (*models.Epic, error)

	// Get returns one epic.
	Get(ctx context.Context, epicID uuid.UUID) (*models.Epic, error)

	// List returns all epics of a project.
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Epic, error)

	// Update changes the epic's descriptive fields. The stage is not
	// touched here; stage transitions belong to the stage services.
	Update(ctx context.Context, epicID uuid.UUID, name, description, speciality string) (*models.Epic, error)

	// Delete removes the epic with its files, artifacts, and stored
	// objects.
	Delete(ctx context.Context, epicID uuid.UUID) error
}

type epicService struct {
	epicRepo     repositories.EpicRepository
	fileRepo     repositories.DesignFileRepository
	artifactRepo repositories.ArtifactRepository
	projectRepo  repositories.ProjectRepository
	store        storage.ObjectStore
	logger       *zap.Logger
}

// NewEpicService creates a new epic service.
func NewEpicService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	artifactRepo repositories.ArtifactRepository,
	projectRepo repositories.ProjectRepository,
	store storage.ObjectStore,
	logger *zap.Logger,
) EpicService {
	return &epicService{
		epicRepo:     epicRepo,
		fileRepo:     fileRepo,
		artifactRepo: artifactRepo,
		projectRepo:  projectRepo,
		store:        store,
		logger:       logger.Named("epic-service"),
	}
}

func (s *epicService) Create(ctx context.Context, projectID uuid.UUID, name, description, speciality string) (*models.Epic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidation("name", "epic name is required")
	}

	if _, err := s.projectRepo.Get(ctx, projectID); err != nil {
		return nil, err
	}

	epic := &models.Epic{
		ProjectID:   projectID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Speciality:  strings.TrimSpace(speciality),
		Stage:       models.StageDraft,
	}
	if err := s.epicRepo.Create(ctx, epic); err != nil {
		return nil, fmt.Errorf("failed to create epic: %w", err)
	}

	s.logger.Info("epic created",
		zap.String("epic_id", epic.ID.String()),
		zap.String("project_id", projectID.String()))

	return epic, nil
}

func (s *epicService) Get(ctx context.Context, epicID uuid.UUID) (*models.Epic, error) {
	return s.epicRepo.Get(ctx, epicID)
}

func (s *epicService) List(ctx context.Context, projectID uuid.UUID) ([]*models.Epic, error) {
	return s.epicRepo.GetByProject(ctx, projectID)
}

func (s *epicService) Update(ctx context.Context, epicID uuid.UUID, name, description, speciality string) (*models.Epic, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		epic.Name = name
	}
	epic.Description = strings.TrimSpace(description)
	epic.Speciality = strings.TrimSpace(speciality)

	if err := s.epicRepo.Update(ctx, epic); err != nil {
		return nil, err
	}
	return epic, nil
}

func (s *epicService) Delete(ctx context.Context, epicID uuid.UUID) error {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return err
	}

	project, err := s.projectRepo.Get(ctx, epic.ProjectID)
	if err != nil {
		return err
	}

	if err := s.artifactRepo.DeleteByEpic(ctx, epicID); err != nil {
		return err
	}
	if _, err := s.fileRepo.DeleteByEpic(ctx, epicID); err != nil {
		return err
	}
	if err := s.epicRepo.Delete(ctx, epicID); err != nil {
		return err
	}

	// Object cleanup happens last; a failure here leaves orphaned
	// objects but never dangling rows.
	prefix := storage.EpicPrefix(project.OrgSlug, project.ID, epicID)
	if err := s.store.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("failed to delete stored objects for epic",
			zap.String("epic_id", epicID.String()),
			zap.Error(err))
	}

	s.logger.Info("epic deleted", zap.String("epic_id", epicID.String()))
	return nil
}

// Ensure epicService implements EpicService at compile time.
var _ EpicService = (*epicService)(nil)
