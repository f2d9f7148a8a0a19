package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

// arrangeVision answers the describe pass (images attached) with prose
// and the arrange pass (text only) with the given JSON.
func arrangeVision(arrangement string) *llm.MockVisionClient {
	return &llm.MockVisionClient{
		GenerateVisionFunc: func(_ context.Context, _ string, images []llm.ImageInput) (string, error) {
			if len(images) > 0 {
				return "The user lands on the home screen, then logs in.", nil
			}
			return arrangement, nil
		},
	}
}

func TestAnalyze_ArrangesAndAdvances(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)

	f1 := env.seedFile(t, epic.ID, "shot-1.png", 0)
	f2 := env.seedFile(t, epic.ID, "shot-2.png", 1)
	f3 := env.seedFile(t, epic.ID, "shot-3.png", 2)

	// The backend reorders: screen 2 first, then screen 1 with screen 3
	// nested under it.
	vision := arrangeVision(`[
		{"original_position": 2, "title": "Login", "description": "Sign-in form"},
		{"original_position": 1, "title": "Home", "description": "Landing page",
		 "sub_screens": [{"original_position": 3, "title": "Home / Empty", "description": "Empty state"}]}
	]`)

	svc := NewAnalyzeService(env.epics, env.files, env.store, vision, env.logger)
	result, err := svc.Analyze(context.Background(), epic.ID, false)
	require.NoError(t, err)

	assert.True(t, result.MappedAll)
	assert.Equal(t, 2, vision.GenerateVisionCalls)
	assert.Equal(t, models.StageAiAnalysisCompleted, env.epicStage(t, epic.ID))

	// Pipeline order: Login, Home, Home / Empty (sub of Home).
	require.Len(t, result.Files, 3)
	assert.Equal(t, f2.ID, result.Files[0].ID)
	assert.Equal(t, "Login", result.Files[0].Filename)
	assert.True(t, result.Files[0].IsMain())

	assert.Equal(t, f1.ID, result.Files[1].ID)
	assert.Equal(t, "Home", result.Files[1].Filename)
	assert.True(t, result.Files[1].IsMain())

	assert.Equal(t, f3.ID, result.Files[2].ID)
	assert.Equal(t, "Home / Empty", result.Files[2].Filename)
	assert.Equal(t, f1.ID, result.Files[2].ParentID)
}

func TestAnalyze_SkipsUnknownAndDuplicatePositions(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)

	f1 := env.seedFile(t, epic.ID, "shot-1.png", 0)
	env.seedFile(t, epic.ID, "shot-2.png", 1)

	// Position 9 does not exist and position 1 is claimed twice; only
	// the first claim counts.
	vision := arrangeVision(`[
		{"original_position": 1, "title": "Home"},
		{"original_position": 9, "title": "Ghost"},
		{"original_position": 1, "title": "Duplicate"}
	]`)

	svc := NewAnalyzeService(env.epics, env.files, env.store, vision, env.logger)
	result, err := svc.Analyze(context.Background(), epic.ID, false)
	require.NoError(t, err)

	assert.False(t, result.MappedAll)
	// Partial mapping never advances the stage.
	assert.Equal(t, models.StageUploadCompleted, env.epicStage(t, epic.ID))

	renamed, err := env.files.Get(context.Background(), f1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home", renamed.Filename)
}

func TestAnalyze_StageGuards(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	vision := arrangeVision(`[{"original_position": 1, "title": "Home"}]`)
	svc := NewAnalyzeService(env.epics, env.files, env.store, vision, env.logger)

	draft := env.seedEpic(t, project.ID, models.StageDraft)
	_, err := svc.Analyze(context.Background(), draft.ID, false)
	assert.True(t, apperrors.IsValidation(err))

	done := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)
	env.seedFile(t, done.ID, "shot-1.png", 0)
	_, err = svc.Analyze(context.Background(), done.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrStageCompleted)

	// Regenerating past the analysis stage is allowed and leaves the
	// stage alone.
	result, err := svc.Analyze(context.Background(), done.ID, true)
	require.NoError(t, err)
	assert.True(t, result.MappedAll)
	assert.Equal(t, models.StageAiAnalysisCompleted, env.epicStage(t, done.ID))
}

func TestAnalyze_RejectsEmptyEpic(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)

	svc := NewAnalyzeService(env.epics, env.files, env.store, &llm.MockVisionClient{}, env.logger)
	_, err := svc.Analyze(context.Background(), epic.ID, false)
	assert.True(t, apperrors.IsValidation(err))
}
