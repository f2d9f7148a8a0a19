package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/jsonutil"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/prompts"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
)

// AnalyzeResult reports what the describe-and-arrange stage did.
type AnalyzeResult struct {
	Files []*models.DesignFile `json:"files"`

	// MappedAll is false when the backend's proposed arrangement left
	// some screenshots unmapped; the stage does not advance until a
	// re-run maps every file.
	MappedAll bool `json:"mapped_all"`
}

// AnalyzeService runs the describe-and-arrange stage: two backend
// passes over the uploaded screenshots, followed by one atomic rewrite
// of the file tree.
type AnalyzeService interface {
	Analyze(ctx context.Context, epicID uuid.UUID, regenerate bool) (*AnalyzeResult, error)
}

// arrangeEntry is the shape of one main screen in the arrangement the
// backend returns.
// Title and Description are raw so sloppy model output (numbers or
// booleans where a string belongs) still parses.
type arrangeEntry struct {
	OriginalPosition int             `json:"original_position"`
	Title            json.RawMessage `json:"title"`
	Description      json.RawMessage `json:"description"`
	SubScreens       []arrangeSubRef `json:"sub_screens,omitempty"`
}

type arrangeSubRef struct {
	OriginalPosition int             `json:"original_position"`
	Title            json.RawMessage `json:"title"`
	Description      json.RawMessage `json:"description"`
}

type analyzeService struct {
	epicRepo repositories.EpicRepository
	fileRepo repositories.DesignFileRepository
	store    storage.ObjectStore
	vision   llm.VisionClient
	logger   *zap.Logger
}

// NewAnalyzeService creates a new analyze service.
func NewAnalyzeService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	store storage.ObjectStore,
	vision llm.VisionClient,
	logger *zap.Logger,
) AnalyzeService {
	return &analyzeService{
		epicRepo: epicRepo,
		fileRepo: fileRepo,
		store:    store,
		vision:   vision,
		logger:   logger.Named("analyze-service"),
	}
}

func (s *analyzeService) Analyze(ctx context.Context, epicID uuid.UUID, regenerate bool) (*AnalyzeResult, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if epic.Stage == models.StageDraft {
		return nil, apperrors.NewValidation("stage", "upload files before running analysis")
	}
	if epic.Stage.AtLeast(models.StageAiAnalysisCompleted) && !regenerate {
		return nil, apperrors.ErrStageCompleted
	}

	files, err := s.fileRepo.GetByEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NewValidation("files", "epic has no uploaded files")
	}

	images, err := s.loadImages(ctx, files)
	if err != nil {
		return nil, err
	}

	epicCtx := prompts.EpicContext{
		Name:        epic.Name,
		Description: epic.Description,
		Speciality:  epic.Speciality,
	}

	// Pass 1: free-text reference flow from the screenshots.
	referenceFlow, err := s.vision.GenerateVision(ctx,
		prompts.BuildDescribePrompt(epicCtx, len(files)), images)
	if err != nil {
		return nil, apperrors.NewBackend("vision", "screen analysis failed", err)
	}

	// Pass 2: text only, turning the flow into a strict ordered list.
	arrangement, err := s.vision.GenerateVision(ctx,
		prompts.BuildArrangePrompt(epicCtx, referenceFlow, len(files)), nil)
	if err != nil {
		return nil, apperrors.NewBackend("vision", "screen arrangement failed", err)
	}

	entries, err := llm.ParseJSONResponse[[]arrangeEntry](arrangement)
	if err != nil {
		return nil, apperrors.NewBackend("vision", "unparseable screen arrangement", err)
	}

	rewrites, mappedAll := s.buildRewrites(epicID, files, entries)
	if len(rewrites) == 0 {
		return nil, apperrors.NewBackend("vision", "arrangement mapped no screens", nil)
	}

	if err := s.fileRepo.ApplyRewrites(ctx, epicID, rewrites); err != nil {
		return nil, err
	}

	// Advance only once every uploaded file found its place.
	if mappedAll && epic.Stage == models.StageUploadCompleted {
		if err := s.epicRepo.UpdateStage(ctx, epicID,
			models.StageUploadCompleted, models.StageAiAnalysisCompleted); err != nil {
			return nil, err
		}
	}

	updated, err := s.fileRepo.GetByEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("analysis completed",
		zap.String("epic_id", epicID.String()),
		zap.Int("file_count", len(files)),
		zap.Int("rewritten", len(rewrites)),
		zap.Bool("mapped_all", mappedAll))

	return &AnalyzeResult{Files: updated, MappedAll: mappedAll}, nil
}

func (s *analyzeService) loadImages(ctx context.Context, files []*models.DesignFile) ([]llm.ImageInput, error) {
	images := make([]llm.ImageInput, 0, len(files))
	for _, f := range files {
		r, err := s.store.Download(ctx, f.ObjectKey)
		if err != nil {
			return nil, apperrors.NewBackend("storage", "could not read uploaded file", err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, apperrors.NewBackend("storage", "could not read uploaded file", err)
		}
		images = append(images, llm.ImageInput{MediaType: mediaTypeForKey(f.ObjectKey), Data: data})
	}
	return images, nil
}

// buildRewrites maps each proposed entry back to its originating file
// by 1-based upload position. Entries referencing a position outside
// the uploaded set, or a position already consumed, are skipped with a
// warning; the skipped files keep their current arrangement.
func (s *analyzeService) buildRewrites(epicID uuid.UUID, files []*models.DesignFile, entries []arrangeEntry) ([]models.FileRewrite, bool) {
	used := make(map[int]bool, len(files))
	resolve := func(position int) *models.DesignFile {
		if position < 1 || position > len(files) || used[position] {
			return nil
		}
		used[position] = true
		return files[position-1]
	}

	var rewrites []models.FileRewrite
	mainOrder := 0
	for _, entry := range entries {
		title := jsonutil.FlexibleStringValue(entry.Title)

		main := resolve(entry.OriginalPosition)
		if main == nil {
			s.logger.Warn("arrangement entry references unknown screen, skipping",
				zap.String("epic_id", epicID.String()),
				zap.Int("original_position", entry.OriginalPosition),
				zap.String("title", title))
			continue
		}

		rewrites = append(rewrites, models.FileRewrite{
			FileID:      main.ID,
			Filename:    fallback(title, main.Filename),
			Description: fallback(jsonutil.FlexibleStringValue(entry.Description), main.Description),
			ParentID:    uuid.Nil,
			OrderIndex:  mainOrder,
		})
		mainOrder++

		for subOrder, sub := range entry.SubScreens {
			subTitle := jsonutil.FlexibleStringValue(sub.Title)

			child := resolve(sub.OriginalPosition)
			if child == nil {
				s.logger.Warn("arrangement sub-entry references unknown screen, skipping",
					zap.String("epic_id", epicID.String()),
					zap.Int("original_position", sub.OriginalPosition),
					zap.String("title", subTitle))
				continue
			}
			rewrites = append(rewrites, models.FileRewrite{
				FileID:      child.ID,
				Filename:    fallback(subTitle, child.Filename),
				Description: fallback(jsonutil.FlexibleStringValue(sub.Description), child.Description),
				ParentID:    main.ID,
				OrderIndex:  subOrder,
			})
		}
	}

	return rewrites, len(rewrites) == len(files)
}

func fallback(value, current string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return current
}

func mediaTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	case strings.HasSuffix(key, ".gif"):
		return "image/gif"
	default:
		return "image/png"
	}
}

var _ AnalyzeService = (*analyzeService)(nil)
