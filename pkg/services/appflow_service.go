package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/prompts"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// appFlowSystemMessage primes the long-context backend for flow writing.
const appFlowSystemMessage = "You are a senior product manager writing precise, implementation-ready feature documentation in markdown."

// AppFlowService generates the application-flow document for an epic,
// streaming it to the client while it is produced.
type AppFlowService interface {
	// Generate runs app-flow generation. Chunks go to the relay as they
	// arrive; the finished document is persisted as the epic's app-flow
	// artifact even if the client disconnected mid-stream.
	Generate(ctx context.Context, epicID uuid.UUID, relay *stream.Relay, regenerate bool) (*models.Artifact, error)
}

type appFlowService struct {
	epicRepo     repositories.EpicRepository
	fileRepo     repositories.DesignFileRepository
	artifactRepo repositories.ArtifactRepository
	projectRepo  repositories.ProjectRepository
	text         llm.TextClient
	logger       *zap.Logger
}

// NewAppFlowService creates a new app-flow service.
func NewAppFlowService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	artifactRepo repositories.ArtifactRepository,
	projectRepo repositories.ProjectRepository,
	text llm.TextClient,
	logger *zap.Logger,
) AppFlowService {
	return &appFlowService{
		epicRepo:     epicRepo,
		fileRepo:     fileRepo,
		artifactRepo: artifactRepo,
		projectRepo:  projectRepo,
		text:         text,
		logger:       logger.Named("appflow-service"),
	}
}

func (s *appFlowService) Generate(ctx context.Context, epicID uuid.UUID, relay *stream.Relay, regenerate bool) (*models.Artifact, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if !epic.Stage.AtLeast(models.StageBackendLogicsCompleted) {
		return nil, apperrors.NewValidation("stage", "complete the backend-logic stage before generating the app flow")
	}
	if epic.Stage.AtLeast(models.StageAppFlowGenerated) && !regenerate {
		return nil, apperrors.ErrStageCompleted
	}

	project, err := s.projectRepo.Get(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := checkRegenerationAllowed(ctx, s.artifactRepo, project, epicID, models.SubScopeAppFlow); err != nil {
		return nil, err
	}

	files, err := s.fileRepo.GetByEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}

	// Generation and persistence outlive a client disconnect; only
	// chunk delivery stops.
	genCtx := context.WithoutCancel(ctx)

	// With no screens there is nothing to prompt with: persist an empty
	// document and leave the stage alone.
	if len(files) == 0 {
		s.logger.Warn("app-flow generation with no design files",
			zap.String("epic_id", epicID.String()))
		return s.artifactRepo.Upsert(genCtx, &models.Artifact{
			EpicID:   epicID,
			SubScope: models.SubScopeAppFlow,
		})
	}

	prompt := prompts.BuildAppFlowPrompt(
		prompts.EpicContext{Name: epic.Name, Description: epic.Description, Speciality: epic.Speciality},
		screenContexts(files),
		narrationFragments(epic, files),
	)

	content, err := s.text.Stream(genCtx, appFlowSystemMessage, prompt, func(delta string) error {
		relay.Write(delta)
		return nil
	})
	if err != nil {
		// A failed generation never overwrites a previously-good
		// artifact.
		return nil, apperrors.NewBackend("text", "app-flow generation failed", err)
	}

	artifact, err := s.artifactRepo.Upsert(genCtx, &models.Artifact{
		EpicID:   epicID,
		SubScope: models.SubScopeAppFlow,
		Content:  content,
	})
	if err != nil {
		return nil, err
	}

	if epic.Stage == models.StageBackendLogicsCompleted {
		if err := s.epicRepo.UpdateStage(genCtx, epicID,
			models.StageBackendLogicsCompleted, models.StageAppFlowGenerated); err != nil {
			return nil, err
		}
	}

	s.logger.Info("app flow generated",
		zap.String("epic_id", epicID.String()),
		zap.Int("content_len", len(content)),
		zap.Int("regenerate_count", artifact.RegenerateCount),
		zap.Bool("client_connected", !relay.Closed()))

	return artifact, nil
}

func screenContexts(files []*models.DesignFile) []prompts.ScreenContext {
	screens := make([]prompts.ScreenContext, 0, len(files))
	for i, f := range files {
		screens = append(screens, prompts.ScreenContext{
			Position:    i + 1,
			Filename:    f.Filename,
			Description: f.Description,
			IsSub:       !f.IsMain(),
		})
	}
	return screens
}

func narrationFragments(epic *models.Epic, files []*models.DesignFile) []string {
	var fragments []string
	if epic.BackendLogicTranscription != "" {
		fragments = append(fragments, epic.BackendLogicTranscription)
	}
	for _, f := range files {
		if f.TranscriptionFragment != "" {
			fragments = append(fragments, fmt.Sprintf("%s: %s", f.Filename, f.TranscriptionFragment))
		}
	}
	return fragments
}

// Ensure appFlowService implements AppFlowService at compile time.
var _ AppFlowService = (*appFlowService)(nil)
