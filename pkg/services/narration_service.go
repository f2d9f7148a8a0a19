package services

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/prompts"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
)

// audioObjectName is the fixed name of the narration audio object. Every
// recording for an epic writes to the same templated key, so a new
// recording overwrites the old bytes in place.
const audioObjectName = "backend-logic"

// NarrationService defines the interface for the backend-logic stage.
type NarrationService interface {
	// UploadAudio stores a narration recording, transcribes it, and
	// appends the transcript to the epic's accumulated narration.
	UploadAudio(ctx context.Context, epicID uuid.UUID, filename string, audio io.Reader) (*models.Epic, error)

	// SubmitText appends free-text narration and redistributes it into
	// per-screen fragments via a backend pass over the screenshots.
	SubmitText(ctx context.Context, epicID uuid.UUID, text string) (*models.Epic, error)

	// DeleteAudio removes the stored recording and clears the audio
	// key. Narration already merged into the transcription stays.
	DeleteAudio(ctx context.Context, epicID uuid.UUID) (*models.Epic, error)

	// Complete advances the epic past the narration stage. Narration is
	// optional; completing with none recorded is valid.
	Complete(ctx context.Context, epicID uuid.UUID) (*models.Epic, error)
}

type narrationService struct {
	epicRepo    repositories.EpicRepository
	fileRepo    repositories.DesignFileRepository
	projectRepo repositories.ProjectRepository
	store       storage.ObjectStore
	vision      llm.VisionClient
	transcriber llm.Transcriber
	logger      *zap.Logger
}

// NewNarrationService creates a new narration service.
func NewNarrationService(
	epicRepo repositories.EpicRepository,
	fileRepo repositories.DesignFileRepository,
	projectRepo repositories.ProjectRepository,
	store storage.ObjectStore,
	vision llm.VisionClient,
	transcriber llm.Transcriber,
	logger *zap.Logger,
) NarrationService {
	return &narrationService{
		epicRepo:    epicRepo,
		fileRepo:    fileRepo,
		projectRepo: projectRepo,
		store:       store,
		vision:      vision,
		transcriber: transcriber,
		logger:      logger.Named("narration-service"),
	}
}

func (s *narrationService) getNarratableEpic(ctx context.Context, epicID uuid.UUID) (*models.Epic, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if !epic.Stage.AtLeast(models.StageAiAnalysisCompleted) {
		return nil, apperrors.NewValidation("stage", "complete screen analysis before adding backend logic")
	}
	return epic, nil
}

func (s *narrationService) UploadAudio(ctx context.Context, epicID uuid.UUID, filename string, audio io.Reader) (*models.Epic, error) {
	epic, err := s.getNarratableEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.Get(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".webm"
	}
	key := storage.ObjectKey(project.OrgSlug, project.ID, epicID, storage.RoleAudio, audioObjectName+ext)

	// Buffer the audio so both the object write and transcription can
	// read it.
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, apperrors.NewValidation("audio", "could not read audio payload")
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidation("audio", "audio payload is empty")
	}

	// Replacing a recording is delete-then-write. The key carries the
	// upload's extension, so a re-record in a different container would
	// otherwise orphan the old object.
	if epic.BackendLogicAudioKey != "" && epic.BackendLogicAudioKey != key {
		if err := s.store.Delete(ctx, epic.BackendLogicAudioKey); err != nil {
			s.logger.Warn("failed to delete replaced narration audio object",
				zap.String("key", epic.BackendLogicAudioKey), zap.Error(err))
		}
	}

	if err := s.store.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, apperrors.NewBackend("storage", "audio upload failed", err)
	}

	transcript, err := s.transcriber.Transcribe(ctx, audioObjectName+ext, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewBackend("speech", "audio transcription error", err)
	}

	combined := joinNarration(epic.BackendLogicTranscription, transcript)
	if err := s.epicRepo.SetBackendLogic(ctx, epicID, combined, key); err != nil {
		return nil, err
	}

	epic.BackendLogicTranscription = combined
	epic.BackendLogicAudioKey = key

	s.logger.Info("narration audio transcribed",
		zap.String("epic_id", epicID.String()),
		zap.Int("transcript_len", len(transcript)))

	return epic, nil
}

// redistribution is the backend's partition of free-text narration
// across screens.
type redistribution struct {
	Screens []struct {
		URL      string `json:"url"`
		Fragment string `json:"fragment"`
	} `json:"screens"`
	General string `json:"general"`
}

func (s *narrationService) SubmitText(ctx context.Context, epicID uuid.UUID, text string) (*models.Epic, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidation("text", "narration text is required")
	}

	epic, err := s.getNarratableEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}

	combined := joinNarration(epic.BackendLogicTranscription, text)
	if err := s.epicRepo.SetBackendLogic(ctx, epicID, combined, epic.BackendLogicAudioKey); err != nil {
		return nil, err
	}
	epic.BackendLogicTranscription = combined

	if err := s.redistribute(ctx, epic, text); err != nil {
		// The narration itself is saved; a failed redistribution only
		// costs the per-screen fragments.
		s.logger.Warn("narration redistribution failed",
			zap.String("epic_id", epicID.String()),
			zap.Error(err))
	}

	return epic, nil
}

func (s *narrationService) redistribute(ctx context.Context, epic *models.Epic, text string) error {
	files, err := s.fileRepo.GetByEpic(ctx, epic.ID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	screens := make([]prompts.ScreenContext, 0, len(files))
	for _, f := range files {
		screens = append(screens, prompts.ScreenContext{
			Filename: f.Filename,
			URL:      s.store.PublicURL(f.ObjectKey),
		})
	}

	epicCtx := prompts.EpicContext{Name: epic.Name, Description: epic.Description, Speciality: epic.Speciality}
	response, err := s.vision.GenerateVision(ctx,
		prompts.BuildRedistributePrompt(epicCtx, text, screens), nil)
	if err != nil {
		return err
	}

	parsed, err := llm.ParseJSONResponse[redistribution](response)
	if err != nil {
		return err
	}

	for _, screen := range parsed.Screens {
		fragment := strings.TrimSpace(screen.Fragment)
		if fragment == "" {
			continue
		}

		key, ok := s.store.KeyFromURL(screen.URL)
		if !ok {
			// Fragments pointing outside our store are dropped.
			continue
		}
		file, err := s.fileRepo.GetByObjectKey(ctx, epic.ID, key)
		if err != nil {
			continue
		}

		combined := joinNarration(file.TranscriptionFragment, fragment)
		if err := s.fileRepo.SetTranscriptionFragment(ctx, file.ID, combined); err != nil {
			return err
		}
	}

	return nil
}

func (s *narrationService) DeleteAudio(ctx context.Context, epicID uuid.UUID) (*models.Epic, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if epic.BackendLogicAudioKey == "" {
		return nil, apperrors.ErrNotFound
	}

	if err := s.store.Delete(ctx, epic.BackendLogicAudioKey); err != nil {
		s.logger.Warn("failed to delete narration audio object",
			zap.String("key", epic.BackendLogicAudioKey), zap.Error(err))
	}

	if err := s.epicRepo.SetBackendLogic(ctx, epicID, epic.BackendLogicTranscription, ""); err != nil {
		return nil, err
	}
	epic.BackendLogicAudioKey = ""

	return epic, nil
}

func (s *narrationService) Complete(ctx context.Context, epicID uuid.UUID) (*models.Epic, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if epic.Stage.AtLeast(models.StageBackendLogicsCompleted) {
		return nil, apperrors.ErrStageCompleted
	}

	if err := s.epicRepo.UpdateStage(ctx, epicID,
		models.StageAiAnalysisCompleted, models.StageBackendLogicsCompleted); err != nil {
		return nil, err
	}
	epic.Stage = models.StageBackendLogicsCompleted
	return epic, nil
}

func joinNarration(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}

// Ensure narrationService implements NarrationService at compile time.
var _ NarrationService = (*narrationService)(nil)
