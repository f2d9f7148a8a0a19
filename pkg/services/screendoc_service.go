package services

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/prompts"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// ScreenDocResult summarizes one generate-all run.
type ScreenDocResult struct {
	Generated []uuid.UUID `json:"generated"`
	Failed    []uuid.UUID `json:"failed"`
}

// ScreenDocService generates per-screen documentation, multiplexing all
// screens into one stream separated by markers.
type ScreenDocService interface {
	// GenerateAll generates docs for every file that lacks one, in
	// pipeline order. Each file is announced on the stream with a
	// marker before its text. One file's failure does not stop the
	// remaining files.
	GenerateAll(ctx context.Context, epicID uuid.UUID, relay *stream.Relay) (*ScreenDocResult, error)

	// RegenerateOne regenerates a single file's doc, subject to the
	// project's regeneration tier.
	RegenerateOne(ctx context.Context, epicID, fileID uuid.UUID, relay *stream.Relay) (*models.DesignFile, error)

	// Complete marks the screen-doc stage finished. The client drives
	// this explicitly; files without docs do not block it.
	Complete(ctx context.Context, epicID uuid.UUID) (*models.Epic, error)
}

type screenDocService struct {
	epicRepo     repositories.EpicRepository
	fileRepo     repositories.DesignFileRepository
	artifactRepo repositories.ArtifactRepository
	projectRepo  repositories.ProjectRepository
	store        storage.ObjectStore
	vision       llm.VisionClient
	logger       *zap.Logger
}

// NewScreenDocService creates a new screen-doc service.
func NewScreenDocService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	artifactRepo repositories.ArtifactRepository,
	projectRepo repositories.ProjectRepository,
	store storage.ObjectStore,
	vision llm.VisionClient,
	logger *zap.Logger,
) ScreenDocService {
	return &screenDocService{
		epicRepo:     epicRepo,
		fileRepo:     fileRepo,
		artifactRepo: artifactRepo,
		projectRepo:  projectRepo,
		store:        store,
		vision:       vision,
		logger:       logger.Named("screendoc-service"),
	}
}

func (s *screenDocService) GenerateAll(ctx context.Context, epicID uuid.UUID, relay *stream.Relay) (*ScreenDocResult, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if !epic.Stage.AtLeast(models.StageAppFlowGenerated) {
		return nil, apperrors.NewValidation("stage", "generate the app flow before screen docs")
	}

	files, err := s.fileRepo.GetByEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}

	appFlow := s.appFlowContent(ctx, epicID)
	genCtx := context.WithoutCancel(ctx)

	result := &ScreenDocResult{}
	for _, file := range files {
		if file.ScreenDoc != "" {
			continue
		}

		relay.WriteMarker(stream.Marker{
			Type:     stream.MarkerScreenStart,
			FileID:   file.ID,
			Filename: file.Filename,
		})

		if err := s.generateOne(genCtx, epic, appFlow, file, relay); err != nil {
			// Isolate the failure: announce it, keep going with the
			// remaining screens.
			s.logger.Error("screen doc generation failed",
				zap.String("epic_id", epicID.String()),
				zap.String("file_id", file.ID.String()),
				zap.Error(err))
			relay.WriteMarker(stream.Marker{
				Type:     stream.MarkerScreenError,
				FileID:   file.ID,
				Filename: file.Filename,
			})
			result.Failed = append(result.Failed, file.ID)
			continue
		}
		result.Generated = append(result.Generated, file.ID)
	}

	s.logger.Info("screen doc run finished",
		zap.String("epic_id", epicID.String()),
		zap.Int("generated", len(result.Generated)),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

func (s *screenDocService) RegenerateOne(ctx context.Context, epicID, fileID uuid.UUID, relay *stream.Relay) (*models.DesignFile, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if !epic.Stage.AtLeast(models.StageAppFlowGenerated) {
		return nil, apperrors.NewValidation("stage", "generate the app flow before screen docs")
	}

	file, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.EpicID != epicID {
		return nil, apperrors.ErrNotFound
	}

	if file.ScreenDoc != "" {
		project, err := s.projectRepo.Get(ctx, epic.ProjectID)
		if err != nil {
			return nil, err
		}
		if !project.Plan.CanRegenerate(file.ScreenDocRegenCount) {
			return nil, apperrors.ErrRegenerationLimit
		}
	}

	genCtx := context.WithoutCancel(ctx)
	relay.WriteMarker(stream.Marker{Type: stream.MarkerScreenStart, FileID: file.ID, Filename: file.Filename})
	if err := s.generateOne(genCtx, epic, s.appFlowContent(ctx, epicID), file, relay); err != nil {
		return nil, apperrors.NewBackend("vision", "screen doc generation failed", err)
	}

	return s.fileRepo.Get(genCtx, fileID)
}

// generateOne streams one screen's doc and persists it. The prior doc
// is only replaced after the new one fully generates.
func (s *screenDocService) generateOne(ctx context.Context, epic *models.Epic, appFlow string, file *models.DesignFile, relay *stream.Relay) error {
	image, err := s.loadImage(ctx, file)
	if err != nil {
		return err
	}

	prompt := prompts.BuildScreenDocPrompt(
		prompts.EpicContext{Name: epic.Name, Description: epic.Description, Speciality: epic.Speciality},
		appFlow,
		prompts.ScreenContext{Filename: file.Filename, Description: file.Description},
	)

	doc, err := s.vision.StreamVision(ctx, prompt, []llm.ImageInput{image}, func(delta string) error {
		relay.Write(delta)
		return nil
	})
	if err != nil {
		return err
	}

	return s.fileRepo.SetScreenDoc(ctx, file.ID, doc)
}

func (s *screenDocService) loadImage(ctx context.Context, file *models.DesignFile) (llm.ImageInput, error) {
	r, err := s.store.Download(ctx, file.ObjectKey)
	if err != nil {
		return llm.ImageInput{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return llm.ImageInput{}, err
	}
	return llm.ImageInput{MediaType: mediaTypeForKey(file.ObjectKey), Data: data}, nil
}

func (s *screenDocService) appFlowContent(ctx context.Context, epicID uuid.UUID) string {
	artifact, err := s.artifactRepo.Get(ctx, epicID, models.SubScopeAppFlow)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("could not load app-flow artifact",
				zap.String("epic_id", epicID.String()), zap.Error(err))
		}
		return ""
	}
	return artifact.Content
}

func (s *screenDocService) Complete(ctx context.Context, epicID uuid.UUID) (*models.Epic, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if epic.Stage.AtLeast(models.StageScreenDocsGenerated) {
		return nil, apperrors.ErrStageCompleted
	}

	if err := s.epicRepo.UpdateStage(ctx, epicID,
		models.StageAppFlowGenerated, models.StageScreenDocsGenerated); err != nil {
		return nil, err
	}
	epic.Stage = models.StageScreenDocsGenerated
	return epic, nil
}

// Ensure screenDocService implements ScreenDocService at compile time.
var _ ScreenDocService = (*screenDocService)(nil)
