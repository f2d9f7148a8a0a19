package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

func TestUploadFiles_StoresAndAdvancesDraft(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageDraft)

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)
	created, err := svc.UploadFiles(context.Background(), epic.ID, []UploadedFile{
		{Filename: "home.png", Data: bytes.NewReader([]byte("png-1"))},
		{Filename: "login.jpg", Data: bytes.NewReader([]byte("jpg-2"))},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, models.StageUploadCompleted, env.epicStage(t, epic.ID))
	assert.Equal(t, 0, created[0].OrderIndex)
	assert.Equal(t, 1, created[1].OrderIndex)

	for _, f := range created {
		assert.True(t, env.store.Has(f.ObjectKey), "object %s missing", f.ObjectKey)
		assert.Contains(t, f.ObjectKey, "acme/")
		assert.Contains(t, f.ObjectKey, "/screenshots/")
	}
	// Object keys are server-generated; the original filename survives
	// only as display metadata.
	assert.False(t, strings.Contains(created[0].ObjectKey, "home.png"))
	assert.Equal(t, "home.png", created[0].Filename)
}

func TestUploadFiles_AppendsAfterExistingMains(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	env.seedFile(t, epic.ID, "existing.png", 4)

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)
	created, err := svc.UploadFiles(context.Background(), epic.ID, []UploadedFile{
		{Filename: "new.png", Data: bytes.NewReader([]byte("png"))},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, created[0].OrderIndex)
	// Past the draft stage an upload never re-transitions.
	assert.Equal(t, models.StageUploadCompleted, env.epicStage(t, epic.ID))
}

func TestUploadFiles_StoreFailureCreatesNoRows(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageDraft)
	env.store.UploadErr = errors.New("bucket unavailable")

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)
	_, err := svc.UploadFiles(context.Background(), epic.ID, []UploadedFile{
		{Filename: "home.png", Data: bytes.NewReader([]byte("png"))},
	})
	require.Error(t, err)

	rows, err := env.files.GetByEpic(context.Background(), epic.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, models.StageDraft, env.epicStage(t, epic.ID))
}

func TestDeleteFile_ChecksEpicOwnership(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	other := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	file := env.seedFile(t, epic.ID, "home.png", 0)

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)

	err := svc.DeleteFile(context.Background(), other.ID, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, env.store.Has(file.ObjectKey))

	require.NoError(t, svc.DeleteFile(context.Background(), epic.ID, file.ID))
	assert.False(t, env.store.Has(file.ObjectKey))
}

func TestDeleteFile_PromotesSubScreens(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	main := env.seedFile(t, epic.ID, "settings.png", 0)
	sub := env.seedFile(t, epic.ID, "settings-detail.png", 0)

	require.NoError(t, env.files.ApplyRewrites(context.Background(), epic.ID, []models.FileRewrite{
		{FileID: sub.ID, Filename: sub.Filename, ParentID: main.ID, OrderIndex: 0},
	}))

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)
	require.NoError(t, svc.DeleteFile(context.Background(), epic.ID, main.ID))

	promoted, err := env.files.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsMain())
}

func TestReorder_RejectsDeepNesting(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	a := env.seedFile(t, epic.ID, "a.png", 0)
	b := env.seedFile(t, epic.ID, "b.png", 1)
	c := env.seedFile(t, epic.ID, "c.png", 2)

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)

	// b under a is fine; c under b would make depth 3 and the whole
	// batch must fail.
	err := svc.Reorder(context.Background(), epic.ID, []models.FileRewrite{
		{FileID: b.ID, ParentID: a.ID, OrderIndex: 0},
		{FileID: c.ID, ParentID: b.ID, OrderIndex: 0},
	})
	assert.True(t, apperrors.IsValidation(err))

	// Atomicity: even the valid rewrite of the batch did not apply.
	unchanged, err := env.files.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, unchanged.ParentID)
}

func TestReorder_BackfillsNameAndDescription(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanFree)
	epic := env.seedEpic(t, project.ID, models.StageUploadCompleted)
	a := env.seedFile(t, epic.ID, "a.png", 0)
	b := env.seedFile(t, epic.ID, "b.png", 1)

	svc := NewUploadService(env.epics, env.files, env.projects, env.store, env.logger)
	require.NoError(t, svc.Reorder(context.Background(), epic.ID, []models.FileRewrite{
		{FileID: a.ID, OrderIndex: 1},
		{FileID: b.ID, OrderIndex: 0},
	}))

	moved, err := env.files.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", moved.Filename)
	assert.Equal(t, 1, moved.OrderIndex)
}
