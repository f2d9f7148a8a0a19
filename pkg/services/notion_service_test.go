package services

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/config"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/crypto"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/notion"
)

// testEncryptor seals tokens the same way the service under test does, so
// seeded integrations decrypt cleanly.
func testEncryptor(t *testing.T) *crypto.CredentialEncryptor {
	t.Helper()
	encryptor, err := crypto.NewCredentialEncryptor("test-passphrase")
	require.NoError(t, err)
	return encryptor
}

func sealedToken(t *testing.T, token string) string {
	t.Helper()
	sealed, err := testEncryptor(t).Encrypt(token)
	require.NoError(t, err)
	return sealed
}

func newNotionTestService(t *testing.T, env *testEnv, client notion.Client) NotionService {
	cfg := config.NotionConfig{
		ClientID:     "client-123",
		ClientSecret: "secret",
		RedirectURI:  "https://app.test/notion/callback",
	}
	return NewNotionService(env.notion, env.epics, env.artifacts, client, nil, testEncryptor(t), cfg, env.logger)
}

func TestNotionAuthorizeURL(t *testing.T) {
	env := newTestEnv()
	svc := newNotionTestService(t, env, &notion.MockClient{})

	raw := svc.AuthorizeURL("state-token")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "user", q.Get("owner"))
	assert.Equal(t, "https://app.test/notion/callback", q.Get("redirect_uri"))
	assert.Equal(t, "state-token", q.Get("state"))
}

func TestNotionHandleCallback(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)

	client := &notion.MockClient{
		ExchangeCodeFunc: func(_ context.Context, code, redirectURI string) (*notion.TokenResponse, error) {
			assert.Equal(t, "auth-code", code)
			assert.Equal(t, "https://app.test/notion/callback", redirectURI)
			return &notion.TokenResponse{
				AccessToken:   "secret-token",
				WorkspaceID:   "ws-1",
				WorkspaceName: "Acme HQ",
			}, nil
		},
	}

	svc := newNotionTestService(t, env, client)
	integration, err := svc.HandleCallback(context.Background(), project.ID, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "Acme HQ", integration.WorkspaceName)

	// The token is encrypted at rest but round-trips through the
	// service's encryptor.
	stored, err := env.notion.GetIntegration(context.Background(), project.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret-token", stored.AccessToken)
	opened, err := testEncryptor(t).Decrypt(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", opened)

	_, err = svc.HandleCallback(context.Background(), project.ID, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestNotionListDatabases_RetriesDiscovery(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	require.NoError(t, env.notion.SaveIntegration(context.Background(), &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))

	calls := 0
	client := &notion.MockClient{
		SearchDatabasesFunc: func(context.Context, string) ([]notion.Database, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("gateway timeout")
			}
			return []notion.Database{{ID: "db-epics", Title: "Epics"}}, nil
		},
	}

	svc := newNotionTestService(t, env, client)
	databases, err := svc.ListDatabases(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, databases, 1)
	assert.Equal(t, "db-epics", databases[0].ID)
	assert.Equal(t, 3, calls)
}

func TestNotionListDatabases_ExhaustsRetryBudget(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	require.NoError(t, env.notion.SaveIntegration(context.Background(), &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))

	client := &notion.MockClient{
		SearchDatabasesFunc: func(context.Context, string) ([]notion.Database, error) {
			return nil, errors.New("gateway timeout")
		},
	}

	svc := newNotionTestService(t, env, client)
	_, err := svc.ListDatabases(context.Background(), project.ID)
	require.Error(t, err)
	assert.Equal(t, 3, client.SearchDatabasesCalls)
}

func TestNotionListDatabases_RequiresConnection(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)

	svc := newNotionTestService(t, env, &notion.MockClient{})
	_, err := svc.ListDatabases(context.Background(), project.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotionNotConnected)
}

func TestNotionSaveMappings_DiscoversRelation(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	require.NoError(t, env.notion.SaveIntegration(context.Background(), &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))

	// Notion returns dashed IDs from retrieve but undashed ones in
	// relation properties; matching must not care.
	client := &notion.MockClient{
		RetrieveDatabaseFunc: func(_ context.Context, _, databaseID string) (*notion.Database, error) {
			if databaseID == "aaaa-bbbb" {
				return &notion.Database{ID: "aaaa-bbbb", Title: "Epics"}, nil
			}
			return &notion.Database{
				ID:    "cccc-dddd",
				Title: "Tasks",
				Properties: map[string]notion.Property{
					"Name": {Type: "title"},
					"Epic": {Type: "relation", Relation: &notion.RelationConfig{DatabaseID: "aaaabbbb"}},
				},
			}, nil
		},
	}

	svc := newNotionTestService(t, env, client)
	mappings, err := svc.SaveMappings(context.Background(), project.ID, "aaaa-bbbb", "cccc-dddd")
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	byKind := map[models.NotionDatabaseKind]*models.NotionDatabaseMapping{}
	for _, m := range mappings {
		byKind[m.Kind] = m
	}
	assert.Equal(t, "Epics", byKind[models.NotionDatabaseEpic].DatabaseName)
	assert.Equal(t, "Epic", byKind[models.NotionDatabaseTask].RelationPropertyID)
}

func TestNotionSaveMappings_Validation(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	require.NoError(t, env.notion.SaveIntegration(context.Background(), &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))

	client := &notion.MockClient{
		RetrieveDatabaseFunc: func(_ context.Context, _, databaseID string) (*notion.Database, error) {
			return &notion.Database{ID: databaseID, Title: "No relations here"}, nil
		},
	}
	svc := newNotionTestService(t, env, client)

	_, err := svc.SaveMappings(context.Background(), project.ID, "same", "same")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.SaveMappings(context.Background(), project.ID, "", "tasks")
	assert.True(t, apperrors.IsValidation(err))

	// A task database without a relation back to the epic database is
	// rejected before anything persists.
	_, err = svc.SaveMappings(context.Background(), project.ID, "epics", "tasks")
	assert.True(t, apperrors.IsValidation(err))
	stored, err := env.notion.GetMappings(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestNotionExport(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	epic := env.seedEpic(t, project.ID, models.StageScreenDocsGenerated)

	ctx := context.Background()
	require.NoError(t, env.notion.SaveIntegration(ctx, &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))
	require.NoError(t, env.notion.ReplaceMappings(ctx, project.ID, []*models.NotionDatabaseMapping{
		{Kind: models.NotionDatabaseEpic, DatabaseID: "db-epics"},
		{Kind: models.NotionDatabaseTask, DatabaseID: "db-tasks", RelationPropertyID: "Epic"},
	}))

	_, err := env.artifacts.Upsert(ctx, &models.Artifact{
		EpicID: epic.ID, SubScope: models.SubScopeAppFlow, Content: "# App Flow\n\nStart at home.",
	})
	require.NoError(t, err)
	_, err = env.artifacts.Upsert(ctx, &models.Artifact{
		EpicID: epic.ID, SubScope: models.ToolUserStories,
		Content: "## Story: browse\n\nAs a user, I browse.\n\n## Story: buy\n\nAs a user, I buy.",
	})
	require.NoError(t, err)

	pages := 0
	client := &notion.MockClient{
		CreatePageFunc: func(_ context.Context, _ string, req *notion.CreatePageRequest) (*notion.Page, error) {
			pages++
			if req.DatabaseID == "db-epics" {
				return &notion.Page{ID: "page-epic", URL: "https://notion.so/page-epic"}, nil
			}
			return &notion.Page{ID: "page-task", URL: "https://notion.so/page-task"}, nil
		},
	}

	svc := newNotionTestService(t, env, client)
	result, err := svc.Export(ctx, epic.ID)
	require.NoError(t, err)

	assert.Equal(t, "https://notion.so/page-epic", result.EpicPageURL)
	assert.Len(t, result.TaskPageURLs, 2)
	require.Len(t, client.CreatedPages, 3)

	epicReq := client.CreatedPages[0]
	assert.Equal(t, "db-epics", epicReq.DatabaseID)
	assert.Equal(t, epic.Name, epicReq.Title)

	taskReq := client.CreatedPages[1]
	assert.Equal(t, "db-tasks", taskReq.DatabaseID)
	assert.Equal(t, "Story: browse", taskReq.Title)
	assert.Equal(t, "Epic", taskReq.RelationProperty)
	assert.Equal(t, []string{"page-epic"}, taskReq.RelationPageIDs)
}

func TestNotionExport_RequiresAppFlow(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	epic := env.seedEpic(t, project.ID, models.StageAppFlowGenerated)

	ctx := context.Background()
	require.NoError(t, env.notion.SaveIntegration(ctx, &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))
	require.NoError(t, env.notion.ReplaceMappings(ctx, project.ID, []*models.NotionDatabaseMapping{
		{Kind: models.NotionDatabaseEpic, DatabaseID: "db-epics"},
	}))

	svc := newNotionTestService(t, env, &notion.MockClient{})
	_, err := svc.Export(ctx, epic.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestNotionDisconnect(t *testing.T) {
	env := newTestEnv()
	project := env.seedProject(t, models.PlanPro)
	ctx := context.Background()
	require.NoError(t, env.notion.SaveIntegration(ctx, &models.NotionIntegration{
		ProjectID: project.ID, AccessToken: sealedToken(t, "tok"),
	}))

	svc := newNotionTestService(t, env, &notion.MockClient{})
	require.NoError(t, svc.Disconnect(ctx, project.ID))

	_, err := svc.GetIntegration(ctx, project.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotionNotConnected)

	err = svc.Disconnect(ctx, project.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotionNotConnected)
}
