package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// toolSystemMessage primes the text backend for template-driven output.
const toolSystemMessage = "You are a senior product manager producing structured project documents in markdown. Follow the requested format exactly."

// ToolService runs advanced-tool generation (user stories, test plans)
// by substituting pipeline artifacts into a tool template and streaming
// the result.
type ToolService interface {
	// Generate streams the tool output and upserts it as the epic's
	// artifact under the tool's sub-scope, with the same regeneration
	// rules as the app-flow document.
	Generate(ctx context.Context, epicID uuid.UUID, toolID string, relay *stream.Relay, regenerate bool) (*models.Artifact, error)

	// ListTools returns the available tools.
	ListTools() []models.AdvancedTool
}

type toolService struct {
	epicRepo     repositories.EpicRepository
	fileRepo     repositories.DesignFileRepository
	artifactRepo repositories.ArtifactRepository
	projectRepo  repositories.ProjectRepository
	text         llm.TextClient
	logger       *zap.Logger
}

// NewToolService creates a new tool service.
func NewToolService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	artifactRepo repositories.ArtifactRepository,
	projectRepo repositories.ProjectRepository,
	text llm.TextClient,
	logger *zap.Logger,
) ToolService {
	return &toolService{
		epicRepo:     epicRepo,
		fileRepo:     fileRepo,
		artifactRepo: artifactRepo,
		projectRepo:  projectRepo,
		text:         text,
		logger:       logger.Named("tool-service"),
	}
}

func (s *toolService) ListTools() []models.AdvancedTool {
	return models.BuiltinTools
}

func (s *toolService) Generate(ctx context.Context, epicID uuid.UUID, toolID string, relay *stream.Relay, regenerate bool) (*models.Artifact, error) {
	tool, ok := models.FindTool(toolID)
	if !ok {
		return nil, apperrors.NewValidation("tool", fmt.Sprintf("unknown tool %q", toolID))
	}

	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if !epic.Stage.AtLeast(models.StageAppFlowGenerated) {
		return nil, apperrors.NewValidation("stage", "generate the app flow before running tools")
	}

	if existing, err := s.artifactRepo.Get(ctx, epicID, tool.ID); err == nil && existing != nil && !regenerate {
		return nil, apperrors.ErrStageCompleted
	}

	project, err := s.projectRepo.Get(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := checkRegenerationAllowed(ctx, s.artifactRepo, project, epicID, tool.ID); err != nil {
		return nil, err
	}

	prompt, err := s.expandTemplate(ctx, epic, tool)
	if err != nil {
		return nil, err
	}

	genCtx := context.WithoutCancel(ctx)
	content, err := s.text.Stream(genCtx, toolSystemMessage, prompt, func(delta string) error {
		relay.Write(delta)
		return nil
	})
	if err != nil {
		return nil, apperrors.NewBackend("text", "tool generation failed", err)
	}

	artifact, err := s.artifactRepo.Upsert(genCtx, &models.Artifact{
		EpicID:   epicID,
		SubScope: tool.ID,
		Content:  content,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tool output generated",
		zap.String("epic_id", epicID.String()),
		zap.String("tool", tool.ID),
		zap.Int("content_len", len(content)))

	return artifact, nil
}

// expandTemplate substitutes the named placeholders into the tool
// template.
func (s *toolService) expandTemplate(ctx context.Context, epic *models.Epic, tool models.AdvancedTool) (string, error) {
	appFlow := ""
	if artifact, err := s.artifactRepo.Get(ctx, epic.ID, models.SubScopeAppFlow); err == nil {
		appFlow = artifact.Content
	}

	files, err := s.fileRepo.GetByEpic(ctx, epic.ID)
	if err != nil {
		return "", err
	}
	var docs strings.Builder
	for _, f := range files {
		if f.ScreenDoc == "" {
			continue
		}
		fmt.Fprintf(&docs, "## %s\n\n%s\n\n", f.Filename, f.ScreenDoc)
	}

	replacer := strings.NewReplacer(
		"{{epicName}}", epic.Name,
		"{{epicDescription}}", epic.Description,
		"{{app-flow}}", appFlow,
		"{{screen-docs}}", docs.String(),
	)
	return replacer.Replace(tool.Template), nil
}

// Ensure toolService implements ToolService at compile time.
var _ ToolService = (*toolService)(nil)
