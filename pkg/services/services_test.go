package services

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/stream"
)

// testEnv bundles the in-memory repositories and object store shared by
// the service tests.
type testEnv struct {
	projects  *repositories.MemoryProjectRepository
	epics     *repositories.MemoryEpicRepository
	files     *repositories.MemoryDesignFileRepository
	artifacts *repositories.MemoryArtifactRepository
	notion    *repositories.MemoryNotionRepository
	store     *storage.MemoryStore
	logger    *zap.Logger
}

func newTestEnv() *testEnv {
	return &testEnv{
		projects:  repositories.NewMemoryProjectRepository(),
		epics:     repositories.NewMemoryEpicRepository(),
		files:     repositories.NewMemoryDesignFileRepository(),
		artifacts: repositories.NewMemoryArtifactRepository(),
		notion:    repositories.NewMemoryNotionRepository(),
		store:     storage.NewMemoryStore(),
		logger:    zap.NewNop(),
	}
}

func (e *testEnv) seedProject(t *testing.T, plan models.Plan) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:      uuid.New(),
		OrgSlug: "acme",
		Name:    "Acme Dashboard",
		Plan:    plan,
	}
	require.NoError(t, e.projects.Create(context.Background(), project))
	return project
}

func (e *testEnv) seedEpic(t *testing.T, projectID uuid.UUID, stage models.Stage) *models.Epic {
	t.Helper()
	epic := &models.Epic{
		ProjectID:   projectID,
		Name:        "Checkout",
		Description: "Checkout redesign",
		Stage:       stage,
	}
	require.NoError(t, e.epics.Create(context.Background(), epic))
	return epic
}

// seedFile stores an object and its DesignFile row.
func (e *testEnv) seedFile(t *testing.T, epicID uuid.UUID, filename string, orderIndex int) *models.DesignFile {
	t.Helper()
	ctx := context.Background()
	epic, err := e.epics.Get(ctx, epicID)
	require.NoError(t, err)
	key := storage.ObjectKey("acme", epic.ProjectID, epicID, storage.RoleScreenshot, filename)
	require.NoError(t, e.store.Upload(ctx, key, bytes.NewReader([]byte("png-bytes-"+filename))))
	file := &models.DesignFile{
		EpicID:     epicID,
		ObjectKey:  key,
		Filename:   filename,
		OrderIndex: orderIndex,
	}
	require.NoError(t, e.files.CreateBatch(ctx, []*models.DesignFile{file}))
	return file
}

func (e *testEnv) epicStage(t *testing.T, epicID uuid.UUID) models.Stage {
	t.Helper()
	epic, err := e.epics.Get(context.Background(), epicID)
	require.NoError(t, err)
	return epic.Stage
}

// newTestRelay builds a relay backed by a response recorder so tests can
// inspect the streamed bytes.
func newTestRelay(t *testing.T) (*stream.Relay, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/stream", nil)
	relay, err := stream.NewRelay(w, r, zap.NewNop())
	require.NoError(t, err)
	return relay, w
}
