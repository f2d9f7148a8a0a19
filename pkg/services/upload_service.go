package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
)

// UploadedFile is one screenshot arriving in a multipart upload.
type UploadedFile struct {
	Filename string
	Data     io.Reader
}

// UploadService defines the interface for design-file intake and
// arrangement.
type UploadService interface {
	// UploadFiles stores the screenshots and creates their DesignFile
	// rows. The first successful upload moves a draft epic to the
	// upload-completed stage.
	UploadFiles(ctx context.Context, epicID uuid.UUID, files []UploadedFile) ([]*models.DesignFile, error)

	// ListFiles returns the epic's files in pipeline order.
	ListFiles(ctx context.Context, epicID uuid.UUID) ([]*models.DesignFile, error)

	// DeleteFile removes one file and its stored object. Children of a
	// deleted main screen become main screens.
	DeleteFile(ctx context.Context, epicID, fileID uuid.UUID) error

	// DeleteFiles removes several files in one request. The batch stops
	// at the first missing file.
	DeleteFiles(ctx context.Context, epicID uuid.UUID, fileIDs []uuid.UUID) error

	// Reorder applies a manual drag-and-drop rearrangement as one
	// atomic batch.
	Reorder(ctx context.Context, epicID uuid.UUID, rewrites []models.FileRewrite) error
}

type uploadService struct {
	epicRepo    repositories.EpicRepository
	fileRepo    repositories.DesignFileRepository
	projectRepo repositories.ProjectRepository
	store       storage.ObjectStore
	logger      *zap.Logger
}

// NewUploadService creates a new upload service.
func NewUploadService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	projectRepo repositories.ProjectRepository,
	store storage.ObjectStore,
	logger *zap.Logger,
) UploadService {
	return &uploadService{
		epicRepo:    epicRepo,
		fileRepo:    fileRepo,
		projectRepo: projectRepo,
		store:       store,
		logger:      logger.Named("upload-service"),
	}
}

func (s *uploadService) UploadFiles(ctx context.Context, epicID uuid.UUID, files []UploadedFile) ([]*models.DesignFile, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidation("files", "at least one file is required")
	}

	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.Get(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}

	existing, err := s.fileRepo.GetByEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}
	nextOrder := 0
	for _, f := range existing {
		if f.IsMain() && f.OrderIndex >= nextOrder {
			nextOrder = f.OrderIndex + 1
		}
	}

	created := make([]*models.DesignFile, 0, len(files))
	for i, upload := range files {
		fileID := uuid.New()
		ext := strings.ToLower(filepath.Ext(upload.Filename))
		key := storage.ObjectKey(project.OrgSlug, project.ID, epicID,
			storage.RoleScreenshot, fileID.String()+ext)

		if err := s.store.Upload(ctx, key, upload.Data); err != nil {
			return nil, apperrors.NewBackend("storage", "file upload failed", err)
		}

		created = append(created, &models.DesignFile{
			ID:         fileID,
			EpicID:     epicID,
			ObjectKey:  key,
			Filename:   upload.Filename,
			OrderIndex: nextOrder + i,
		})
	}

	if err := s.fileRepo.CreateBatch(ctx, created); err != nil {
		// Roll back the objects we just wrote.
		for _, f := range created {
			if delErr := s.store.Delete(ctx, f.ObjectKey); delErr != nil {
				s.logger.Warn("failed to clean up object after create failure",
					zap.String("key", f.ObjectKey), zap.Error(delErr))
			}
		}
		return nil, err
	}

	if epic.Stage == models.StageDraft {
		if err := s.epicRepo.UpdateStage(ctx, epicID, models.StageDraft, models.StageUploadCompleted); err != nil {
			return nil, err
		}
	}

	s.logger.Info("files uploaded",
		zap.String("epic_id", epicID.String()),
		zap.Int("count", len(created)))

	return created, nil
}

func (s *uploadService) ListFiles(ctx context.Context, epicID uuid.UUID) ([]*models.DesignFile, error) {
	if _, err := s.epicRepo.Get(ctx, epicID); err != nil {
		return nil, err
	}
	return s.fileRepo.GetByEpic(ctx, epicID)
}

func (s *uploadService) DeleteFile(ctx context.Context, epicID, fileID uuid.UUID) error {
	file, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if file.EpicID != epicID {
		return apperrors.ErrNotFound
	}

	objectKey, err := s.fileRepo.Delete(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, objectKey); err != nil {
		s.logger.Warn("failed to delete stored object",
			zap.String("key", objectKey), zap.Error(err))
	}
	return nil
}

func (s *uploadService) DeleteFiles(ctx context.Context, epicID uuid.UUID, fileIDs []uuid.UUID) error {
	if len(fileIDs) == 0 {
		return apperrors.NewValidation("file_ids", "at least one file id is required")
	}
	for _, fileID := range fileIDs {
		if err := s.DeleteFile(ctx, epicID, fileID); err != nil {
			return err
		}
	}
	return nil
}

func (s *uploadService) Reorder(ctx context.Context, epicID uuid.UUID, rewrites []models.FileRewrite) error {
	if len(rewrites) == 0 {
		return apperrors.NewValidation("rewrites", "at least one rewrite is required")
	}
	if _, err := s.epicRepo.Get(ctx, epicID); err != nil {
		return err
	}

	// Preserve current name and description when the caller only moves
	// files around.
	for i, rw := range rewrites {
		if rw.Filename == "" || rw.Description == "" {
			current, err := s.fileRepo.Get(ctx, rw.FileID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return apperrors.NewValidation("rewrites",
						fmt.Sprintf("file %s does not exist", rw.FileID))
				}
				return err
			}
			if rw.Filename == "" {
				rewrites[i].Filename = current.Filename
			}
			if rw.Description == "" {
				rewrites[i].Description = current.Description
			}
		}
	}

	return s.fileRepo.ApplyRewrites(ctx, epicID, rewrites)
}

// Ensure uploadService implements UploadService at compile time.
var _ UploadService = (*uploadService)(nil)
