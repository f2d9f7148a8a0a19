package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

func newNarrationService(env *testEnv, vision llm.VisionClient, transcriber llm.Transcriber) NarrationService {
	if vision == nil {
		vision = &llm.MockVisionClient{}
	}
	if transcriber == nil {
		transcriber = &llm.MockTranscriber{}
	}
	return NewNarrationService(env.epics, env.files, env.projects, env.store, vision, transcriber, env.logger)
}

func TestUploadAudio_AppendsAndOverwritesSameKey(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)

	calls := 0
	texts := []string{"first take", "second take"}
	svc := newNarrationService(env, nil, &llm.MockTranscriber{
		TranscribeFunc: func(_ context.Context, _ string, _ io.Reader) (string, error) {
			text := texts[calls]
			calls++
			return text, nil
		},
	})

	updated, err := svc.UploadAudio(context.Background(), epic.ID, "take1.webm", bytes.NewReader([]byte("audio-1")))
	require.NoError(t, err)
	assert.Equal(t, "first take", updated.BackendLogicTranscription)
	firstKey := updated.BackendLogicAudioKey
	require.NotEmpty(t, firstKey)
	assert.Equal(t, []byte("audio-1"), env.store.Get(firstKey))

	// A second recording with the same extension lands on the same key
	// and the transcription accumulates.
	updated, err = svc.UploadAudio(context.Background(), epic.ID, "take2.webm", bytes.NewReader([]byte("audio-2")))
	require.NoError(t, err)
	assert.Equal(t, firstKey, updated.BackendLogicAudioKey)
	assert.Equal(t, "first take\nsecond take", updated.BackendLogicTranscription)
	assert.Equal(t, []byte("audio-2"), env.store.Get(firstKey))
	assert.Len(t, env.store.Keys(), 1)
}

func TestUploadAudio_ReplacesRecordingAcrossContainers(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)

	svc := newNarrationService(env, nil, &llm.MockTranscriber{Text: "take"})

	updated, err := svc.UploadAudio(context.Background(), epic.ID, "take1.webm", bytes.NewReader([]byte("webm-bytes")))
	require.NoError(t, err)
	webmKey := updated.BackendLogicAudioKey

	// Re-recording in a different container lands on a new key; the old
	// object must not be left behind.
	updated, err = svc.UploadAudio(context.Background(), epic.ID, "take2.mp3", bytes.NewReader([]byte("mp3-bytes")))
	require.NoError(t, err)
	assert.NotEqual(t, webmKey, updated.BackendLogicAudioKey)
	assert.False(t, env.store.Has(webmKey))
	assert.Equal(t, []byte("mp3-bytes"), env.store.Get(updated.BackendLogicAudioKey))
	assert.Len(t, env.store.Keys(), 1)
}

func TestUploadAudio_StageGuard(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)

	svc := newNarrationService(env, nil, nil)
	_, err := svc.UploadAudio(context.Background(), epic.ID, "take.webm", bytes.NewReader([]byte("audio")))
	assert.True(t, apperrors.IsValidation(err))
}

func TestSubmitText_RedistributesFragmentsToScreens(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)
	home := env.seedFile(t, epic.ID, "home.png", 0)
	login := env.seedFile(t, epic.ID, "login.png", 1)

	vision := &llm.MockVisionClient{
		GenerateVisionFunc: func(context.Context, string, []llm.ImageInput) (string, error) {
			return fmt.Sprintf(`{
				"screens": [
					{"url": %q, "fragment": "Home pulls the feed from the API."},
					{"url": "https://elsewhere.example/unknown.png", "fragment": "dropped"}
				],
				"general": "Everything is REST."
			}`, env.store.PublicURL(home.ObjectKey)), nil
		},
	}

	svc := newNarrationService(env, vision, nil)
	updated, err := svc.SubmitText(context.Background(), epic.ID, "Home pulls the feed. Everything is REST.")
	require.NoError(t, err)
	assert.Equal(t, "Home pulls the feed. Everything is REST.", updated.BackendLogicTranscription)

	matched, err := env.files.Get(context.Background(), home.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home pulls the feed from the API.", matched.TranscriptionFragment)

	// The fragment pointing outside our store vanished without error.
	untouched, err := env.files.Get(context.Background(), login.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.TranscriptionFragment)
}

func TestSubmitText_RedistributionFailureKeepsNarration(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)
	env.seedFile(t, epic.ID, "home.png", 0)

	vision := &llm.MockVisionClient{
		GenerateVisionFunc: func(context.Context, string, []llm.ImageInput) (string, error) {
			return "", errors.New("backend overloaded")
		},
	}

	svc := newNarrationService(env, vision, nil)
	updated, err := svc.SubmitText(context.Background(), epic.ID, "The cart is stored in Redis.")
	require.NoError(t, err)
	assert.Equal(t, "The cart is stored in Redis.", updated.BackendLogicTranscription)
}

func TestDeleteAudio(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)

	svc := newNarrationService(env, nil, &llm.MockTranscriber{Text: "narrated logic"})

	_, err := svc.DeleteAudio(context.Background(), epic.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	uploaded, err := svc.UploadAudio(context.Background(), epic.ID, "take.webm", bytes.NewReader([]byte("audio")))
	require.NoError(t, err)

	cleared, err := svc.DeleteAudio(context.Background(), epic.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.BackendLogicAudioKey)
	assert.False(t, env.store.Has(uploaded.BackendLogicAudioKey))

	// The transcript already merged into the narration survives the
	// audio deletion.
	assert.Equal(t, "narrated logic", cleared.BackendLogicTranscription)
}

func TestNarrationComplete(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)

	svc := newNarrationService(env, nil, nil)

	// Narration is optional; completing without any is valid.
	updated, err := svc.Complete(context.Background(), epic.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageBackendLogicsCompleted, updated.Stage)
	assert.Equal(t, models.StageBackendLogicsCompleted, env.epicStage(t, epic.ID))

	_, err = svc.Complete(context.Background(), epic.ID)
	assert.ErrorIs(t, err, apperrors.ErrStageCompleted)
}

func TestUploadAudio_RejectsEmptyPayload(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageAiAnalysisCompleted)

	svc := newNarrationService(env, nil, nil)
	_, err := svc.UploadAudio(context.Background(), epic.ID, "take.webm", strings.NewReader(""))
	assert.True(t, apperrors.IsValidation(err))
}
