package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/config"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/crypto"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/notion"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/retry"
)

const (
	notionAuthorizeURL = "https://api.notion.com/v1/oauth/authorize"

	// discoveryAttempts is the fixed retry budget for the database
	// listing call, applied with no delay between attempts.
	discoveryAttempts = 3

	databaseCacheTTL = 5 * time.Minute
)

// ExportResult reports the pages created by an export run.
type ExportResult struct {
	EpicPageURL  string   `json:"epic_page_url"`
	TaskPageURLs []string `json:"task_page_urls"`
}

// NotionService manages the per-project Notion connection and exports
// finished pipeline documents into the mapped databases.
type NotionService interface {
	// AuthorizeURL builds the OAuth consent URL carrying the given
	// anti-forgery state.
	AuthorizeURL(state string) string

	// HandleCallback exchanges the OAuth code and stores the workspace
	// connection for the project.
	HandleCallback(ctx context.Context, projectID uuid.UUID, code string) (*models.NotionIntegration, error)

	// GetIntegration returns the project's connection.
	GetIntegration(ctx context.Context, projectID uuid.UUID) (*models.NotionIntegration, error)

	// Disconnect removes the connection and its mappings.
	Disconnect(ctx context.Context, projectID uuid.UUID) error

	// ListDatabases lists the databases the connection can reach.
	// Results are cached briefly; the underlying call retries a fixed
	// number of times with no delay.
	ListDatabases(ctx context.Context, projectID uuid.UUID) ([]notion.Database, error)

	// SaveMappings selects the epic and task databases, discovering the
	// relation property that links tasks back to epics.
	SaveMappings(ctx context.Context, projectID uuid.UUID, epicDatabaseID, taskDatabaseID string) ([]*models.NotionDatabaseMapping, error)

	// Export writes the epic's app-flow document as a page in the epic
	// database and each user story as a page in the task database,
	// linked to the epic page.
	Export(ctx context.Context, epicID uuid.UUID) (*ExportResult, error)
}

type notionService struct {
	notionRepo   repositories.NotionRepository
	epicRepo     repositories.EpicRepository
	artifactRepo repositories.ArtifactRepository
	client       notion.Client
	cache        *redis.Client
	encryptor    *crypto.CredentialEncryptor
	cfg          config.NotionConfig
	logger       *zap.Logger
}

// NewNotionService creates a new Notion service. cache may be nil to
// disable database-list caching. encryptor protects the stored workspace
// token at rest; nil stores it in plaintext (local development only).
func NewNotionService(
	notionRepo repositories.NotionRepository,
	epicRepo repositories.EpicRepository,
	artifactRepo repositories.ArtifactRepository,
	client notion.Client,
	cache *redis.Client,
	encryptor *crypto.CredentialEncryptor,
	cfg config.NotionConfig,
	logger *zap.Logger,
) NotionService {
	return &notionService{
		notionRepo:   notionRepo,
		epicRepo:     epicRepo,
		artifactRepo: artifactRepo,
		client:       client,
		cache:        cache,
		encryptor:    encryptor,
		cfg:          cfg,
		logger:       logger.Named("notion-service"),
	}
}

// sealToken encrypts the workspace token for storage.
func (s *notionService) sealToken(token string) (string, error) {
	if s.encryptor == nil {
		return token, nil
	}
	return s.encryptor.Encrypt(token)
}

// openToken reverses sealToken on a loaded integration.
func (s *notionService) openToken(integration *models.NotionIntegration) (string, error) {
	if s.encryptor == nil {
		return integration.AccessToken, nil
	}
	token, err := s.encryptor.Decrypt(integration.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt workspace token: %w", err)
	}
	return token, nil
}

func (s *notionService) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", s.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("owner", "user")
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("state", state)
	return notionAuthorizeURL + "?" + params.Encode()
}

func (s *notionService) HandleCallback(ctx context.Context, projectID uuid.UUID, code string) (*models.NotionIntegration, error) {
	if code == "" {
		return nil, apperrors.NewValidation("code", "authorization code is required")
	}

	token, err := s.client.ExchangeCode(ctx, code, s.cfg.RedirectURI)
	if err != nil {
		return nil, apperrors.NewBackend("notion", "workspace connection failed", err)
	}

	sealed, err := s.sealToken(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt workspace token: %w", err)
	}

	integration := &models.NotionIntegration{
		ProjectID:     projectID,
		AccessToken:   sealed,
		WorkspaceID:   token.WorkspaceID,
		WorkspaceName: token.WorkspaceName,
	}
	if err := s.notionRepo.SaveIntegration(ctx, integration); err != nil {
		return nil, err
	}

	s.logger.Info("notion workspace connected",
		zap.String("project_id", projectID.String()),
		zap.String("workspace", token.WorkspaceName))

	return integration, nil
}

func (s *notionService) GetIntegration(ctx context.Context, projectID uuid.UUID) (*models.NotionIntegration, error) {
	return s.notionRepo.GetIntegration(ctx, projectID)
}

func (s *notionService) Disconnect(ctx context.Context, projectID uuid.UUID) error {
	if err := s.notionRepo.DeleteIntegration(ctx, projectID); err != nil {
		return err
	}
	s.invalidateDatabaseCache(ctx, projectID)
	return nil
}

func databaseCacheKey(projectID uuid.UUID) string {
	return "notion:databases:" + projectID.String()
}

func (s *notionService) ListDatabases(ctx context.Context, projectID uuid.UUID) ([]notion.Database, error) {
	integration, err := s.notionRepo.GetIntegration(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, databaseCacheKey(projectID)).Bytes(); err == nil {
			var databases []notion.Database
			if err := json.Unmarshal(cached, &databases); err == nil {
				return databases, nil
			}
		}
	}

	token, err := s.openToken(integration)
	if err != nil {
		return nil, err
	}

	databases, err := retry.DoWithResult(ctx, retry.ImmediateConfig(discoveryAttempts),
		func() ([]notion.Database, error) {
			return s.client.SearchDatabases(ctx, token)
		})
	if err != nil {
		return nil, apperrors.NewBackend("notion", "database discovery failed", err)
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(databases); err == nil {
			if err := s.cache.Set(ctx, databaseCacheKey(projectID), encoded, databaseCacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache database list", zap.Error(err))
			}
		}
	}

	return databases, nil
}

func (s *notionService) invalidateDatabaseCache(ctx context.Context, projectID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, databaseCacheKey(projectID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate database cache", zap.Error(err))
	}
}

func (s *notionService) SaveMappings(ctx context.Context, projectID uuid.UUID, epicDatabaseID, taskDatabaseID string) ([]*models.NotionDatabaseMapping, error) {
	if epicDatabaseID == "" || taskDatabaseID == "" {
		return nil, apperrors.NewValidation("databases", "both an epic and a task database are required")
	}
	if epicDatabaseID == taskDatabaseID {
		return nil, apperrors.NewValidation("databases", "epic and task databases must differ")
	}

	integration, err := s.notionRepo.GetIntegration(ctx, projectID)
	if err != nil {
		return nil, err
	}

	token, err := s.openToken(integration)
	if err != nil {
		return nil, err
	}

	epicDB, err := s.client.RetrieveDatabase(ctx, token, epicDatabaseID)
	if err != nil {
		return nil, apperrors.NewBackend("notion", "could not read epic database", err)
	}
	taskDB, err := s.client.RetrieveDatabase(ctx, token, taskDatabaseID)
	if err != nil {
		return nil, apperrors.NewBackend("notion", "could not read task database", err)
	}

	relationProperty := findRelationProperty(taskDB, epicDatabaseID)
	if relationProperty == "" {
		return nil, apperrors.NewValidation("databases",
			"task database has no relation property pointing at the epic database")
	}

	mappings := []*models.NotionDatabaseMapping{
		{Kind: models.NotionDatabaseEpic, DatabaseID: epicDB.ID, DatabaseName: epicDB.Title},
		{Kind: models.NotionDatabaseTask, DatabaseID: taskDB.ID, DatabaseName: taskDB.Title, RelationPropertyID: relationProperty},
	}
	if err := s.notionRepo.ReplaceMappings(ctx, projectID, mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

// findRelationProperty returns the name of the first relation property
// on db that points at targetDatabaseID.
func findRelationProperty(db *notion.Database, targetDatabaseID string) string {
	normalize := func(id string) string {
		return strings.ReplaceAll(id, "-", "")
	}
	target := normalize(targetDatabaseID)
	for name, prop := range db.Properties {
		if prop.Type == "relation" && prop.Relation != nil &&
			normalize(prop.Relation.DatabaseID) == target {
			return name
		}
	}
	return ""
}

func (s *notionService) Export(ctx context.Context, epicID uuid.UUID) (*ExportResult, error) {
	epic, err := s.epicRepo.Get(ctx, epicID)
	if err != nil {
		return nil, err
	}

	integration, err := s.notionRepo.GetIntegration(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}
	token, err := s.openToken(integration)
	if err != nil {
		return nil, err
	}
	mappings, err := s.notionRepo.GetMappings(ctx, epic.ProjectID)
	if err != nil {
		return nil, err
	}

	var epicMapping, taskMapping *models.NotionDatabaseMapping
	for _, m := range mappings {
		switch m.Kind {
		case models.NotionDatabaseEpic:
			epicMapping = m
		case models.NotionDatabaseTask:
			taskMapping = m
		}
	}
	if epicMapping == nil {
		return nil, apperrors.NewValidation("databases", "no epic database mapped")
	}

	appFlow, err := s.artifactRepo.Get(ctx, epicID, models.SubScopeAppFlow)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidation("epic", "generate the app flow before exporting")
		}
		return nil, err
	}

	epicPage, err := s.client.CreatePage(ctx, token, &notion.CreatePageRequest{
		DatabaseID: epicMapping.DatabaseID,
		Title:      epic.Name,
		Markdown:   appFlow.Content,
	})
	if err != nil {
		return nil, apperrors.NewBackend("notion", "epic export failed", err)
	}

	result := &ExportResult{EpicPageURL: epicPage.URL}

	// Task pages come from the user-stories artifact when both it and
	// a task database exist.
	if taskMapping == nil {
		return result, nil
	}
	stories, err := s.artifactRepo.Get(ctx, epicID, models.ToolUserStories)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return result, nil
		}
		return nil, err
	}

	for _, story := range splitStories(stories.Content) {
		page, err := s.client.CreatePage(ctx, token, &notion.CreatePageRequest{
			DatabaseID:       taskMapping.DatabaseID,
			Title:            story.title,
			Markdown:         story.body,
			RelationProperty: taskMapping.RelationPropertyID,
			RelationPageIDs:  []string{epicPage.ID},
		})
		if err != nil {
			return nil, apperrors.NewBackend("notion",
				fmt.Sprintf("task export failed after %d pages", len(result.TaskPageURLs)), err)
		}
		result.TaskPageURLs = append(result.TaskPageURLs, page.URL)
	}

	s.logger.Info("epic exported to notion",
		zap.String("epic_id", epicID.String()),
		zap.Int("task_pages", len(result.TaskPageURLs)))

	return result, nil
}

type storySection struct {
	title string
	body  string
}

// splitStories partitions a user-stories document into one section per
// second-level heading. Content before the first heading is dropped.
func splitStories(content string) []storySection {
	var stories []storySection
	var current *storySection

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			if current != nil {
				current.body = strings.TrimSpace(current.body)
				stories = append(stories, *current)
			}
			current = &storySection{title: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		if current != nil {
			current.body += line + "\n"
		}
	}
	if current != nil {
		current.body = strings.TrimSpace(current.body)
		stories = append(stories, *current)
	}
	return stories
}

// Ensure notionService implements NotionService at compile time.
var _ NotionService = (*notionService)(nil)
