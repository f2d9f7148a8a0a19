//go:build integration

package repositories_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/database"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/testhelpers"
)

// tenantCtx acquires a tenant-scoped connection the way the HTTP
// middleware does and returns a context the repositories can use.
func tenantCtx(t *testing.T, db *database.DB, projectID uuid.UUID) context.Context {
	t.Helper()

	scope, err := db.WithTenant(context.Background(), projectID)
	if err != nil {
		t.Fatalf("failed to acquire tenant scope: %v", err)
	}
	t.Cleanup(scope.Close)

	return database.SetTenantScope(context.Background(), scope)
}

func createProject(t *testing.T, ctx context.Context, id uuid.UUID) *models.Project {
	t.Helper()

	project := &models.Project{ID: id, OrgSlug: "acme", Name: "Acme"}
	if err := repositories.NewProjectRepository().Create(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return project
}

func createEpic(t *testing.T, ctx context.Context, projectID uuid.UUID) *models.Epic {
	t.Helper()

	epic := &models.Epic{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      "Checkout",
		Stage:     models.StageDraft,
	}
	if err := repositories.NewEpicRepository().Create(ctx, epic); err != nil {
		t.Fatalf("failed to create epic: %v", err)
	}
	return epic
}

func TestTenantIsolation(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectA := uuid.New()
	projectB := uuid.New()

	ctxA := tenantCtx(t, engineDB.DB, projectA)
	createProject(t, ctxA, projectA)
	epic := createEpic(t, ctxA, projectA)

	ctxB := tenantCtx(t, engineDB.DB, projectB)
	createProject(t, ctxB, projectB)

	epicRepo := repositories.NewEpicRepository()

	// Tenant B's connection must not see tenant A's epic, even by ID.
	if _, err := epicRepo.Get(ctxB, epic.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}

	if _, err := epicRepo.Get(ctxA, epic.ID); err != nil {
		t.Fatalf("expected owner to see its epic, got %v", err)
	}
}

func TestUpdateStage_PinsCurrentStage(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, projectID)
	createProject(t, ctx, projectID)
	epic := createEpic(t, ctx, projectID)

	epicRepo := repositories.NewEpicRepository()

	if err := epicRepo.UpdateStage(ctx, epic.ID, models.StageDraft, models.StageUploadCompleted); err != nil {
		t.Fatalf("valid transition failed: %v", err)
	}

	// The epic already advanced, so a second identical transition must
	// miss the stage pin and report a conflict.
	err := epicRepo.UpdateStage(ctx, epic.ID, models.StageDraft, models.StageUploadCompleted)
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := epicRepo.Get(ctx, epic.ID)
	if err != nil {
		t.Fatalf("failed to reload epic: %v", err)
	}
	if got.Stage != models.StageUploadCompleted {
		t.Errorf("stage = %q, want %q", got.Stage, models.StageUploadCompleted)
	}
}

func TestArtifactUpsert_CountsRegenerations(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, projectID)
	createProject(t, ctx, projectID)
	epic := createEpic(t, ctx, projectID)

	artifactRepo := repositories.NewArtifactRepository()

	first, err := artifactRepo.Upsert(ctx, &models.Artifact{
		EpicID:   epic.ID,
		SubScope: models.SubScopeAppFlow,
		Content:  "v1",
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.RegenerateCount != 0 {
		t.Errorf("first write RegenerateCount = %d, want 0", first.RegenerateCount)
	}

	second, err := artifactRepo.Upsert(ctx, &models.Artifact{
		EpicID:   epic.ID,
		SubScope: models.SubScopeAppFlow,
		Content:  "v2",
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.RegenerateCount != 1 {
		t.Errorf("second write RegenerateCount = %d, want 1", second.RegenerateCount)
	}
	if second.Content != "v2" {
		t.Errorf("content = %q, want %q", second.Content, "v2")
	}
}

func TestApplyRewrites_RejectsDeepNestingAtomically(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, projectID)
	createProject(t, ctx, projectID)
	epic := createEpic(t, ctx, projectID)

	fileRepo := repositories.NewDesignFileRepository()

	main := &models.DesignFile{ID: uuid.New(), EpicID: epic.ID, ObjectKey: "k1", Filename: "home.png"}
	child := &models.DesignFile{ID: uuid.New(), EpicID: epic.ID, ParentID: main.ID, ObjectKey: "k2", Filename: "home-menu.png", OrderIndex: 1}
	other := &models.DesignFile{ID: uuid.New(), EpicID: epic.ID, ObjectKey: "k3", Filename: "cart.png", OrderIndex: 2}
	if err := fileRepo.CreateBatch(ctx, []*models.DesignFile{main, child, other}); err != nil {
		t.Fatalf("failed to create files: %v", err)
	}

	// Parenting a screen under an existing sub-screen would create depth
	// three. The batch also carries a legal rename that must not survive
	// the rollback.
	err := fileRepo.ApplyRewrites(ctx, epic.ID, []models.FileRewrite{
		{FileID: other.ID, Filename: "cart.png", ParentID: child.ID, OrderIndex: 2},
		{FileID: main.ID, Filename: "start.png", OrderIndex: 0},
	})
	if err == nil {
		t.Fatal("expected depth violation error")
	}

	got, err := fileRepo.Get(ctx, main.ID)
	if err != nil {
		t.Fatalf("failed to reload file: %v", err)
	}
	if got.Filename != "home.png" {
		t.Errorf("rename survived a failed batch: %q", got.Filename)
	}
}

func TestDeleteMainScreen_PromotesChildren(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, projectID)
	createProject(t, ctx, projectID)
	epic := createEpic(t, ctx, projectID)

	fileRepo := repositories.NewDesignFileRepository()

	main := &models.DesignFile{ID: uuid.New(), EpicID: epic.ID, ObjectKey: "main-key", Filename: "home.png"}
	child := &models.DesignFile{ID: uuid.New(), EpicID: epic.ID, ParentID: main.ID, ObjectKey: "child-key", Filename: "home-menu.png", OrderIndex: 1}
	if err := fileRepo.CreateBatch(ctx, []*models.DesignFile{main, child}); err != nil {
		t.Fatalf("failed to create files: %v", err)
	}

	key, err := fileRepo.Delete(ctx, main.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if key != "main-key" {
		t.Errorf("returned key = %q, want %q", key, "main-key")
	}

	promoted, err := fileRepo.Get(ctx, child.ID)
	if err != nil {
		t.Fatalf("failed to reload child: %v", err)
	}
	if !promoted.IsMain() {
		t.Error("expected orphaned sub-screen to become a main screen")
	}
}

func TestNotionMappings_ReplaceWholesale(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	projectID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, projectID)
	createProject(t, ctx, projectID)

	notionRepo := repositories.NewNotionRepository()

	if _, err := notionRepo.GetIntegration(ctx, projectID); !errors.Is(err, apperrors.ErrNotionNotConnected) {
		t.Fatalf("expected ErrNotionNotConnected, got %v", err)
	}

	if err := notionRepo.SaveIntegration(ctx, &models.NotionIntegration{
		ProjectID:     projectID,
		WorkspaceID:   "ws-1",
		WorkspaceName: "Acme HQ",
		AccessToken:   "secret",
	}); err != nil {
		t.Fatalf("failed to save integration: %v", err)
	}

	first := []*models.NotionDatabaseMapping{
		{Kind: models.NotionDatabaseEpic, DatabaseID: "db-epics", DatabaseName: "Epics"},
		{Kind: models.NotionDatabaseTask, DatabaseID: "db-tasks", DatabaseName: "Tasks", RelationPropertyID: "Epic"},
	}
	if err := notionRepo.ReplaceMappings(ctx, projectID, first); err != nil {
		t.Fatalf("failed to replace mappings: %v", err)
	}

	second := []*models.NotionDatabaseMapping{
		{Kind: models.NotionDatabaseEpic, DatabaseID: "db-epics-2", DatabaseName: "Epics v2"},
		{Kind: models.NotionDatabaseTask, DatabaseID: "db-tasks-2", DatabaseName: "Tasks v2", RelationPropertyID: "Parent Epic"},
	}
	if err := notionRepo.ReplaceMappings(ctx, projectID, second); err != nil {
		t.Fatalf("failed to replace mappings again: %v", err)
	}

	mappings, err := notionRepo.GetMappings(ctx, projectID)
	if err != nil {
		t.Fatalf("failed to load mappings: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("mappings = %d, want 2", len(mappings))
	}
	for _, m := range mappings {
		if m.DatabaseID == "db-epics" || m.DatabaseID == "db-tasks" {
			t.Errorf("stale mapping %q survived replacement", m.DatabaseID)
		}
	}
}
