package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/database"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

// NotionRepository defines the interface for Notion integration data access.
type NotionRepository interface {
	// SaveIntegration stores the workspace connection for a project.
	// Reconnecting replaces the previous token in place.
	SaveIntegration(ctx context.Context, integration *models.NotionIntegration) error

	GetIntegration(ctx context.Context, projectID uuid.UUID) (*models.NotionIntegration, error)
	DeleteIntegration(ctx context.Context, projectID uuid.UUID) error

	// ReplaceMappings swaps the project's database mappings wholesale in
	// one transaction.
	ReplaceMappings(ctx context.Context, projectID uuid.UUID, mappings []*models.NotionDatabaseMapping) error

	GetMappings(ctx context.Context, projectID uuid.UUID) ([]*models.NotionDatabaseMapping, error)
}

type notionRepository struct{}

// NewNotionRepository creates a new Notion repository.
func NewNotionRepository() NotionRepository {
	return &notionRepository{}
}

func (r *notionRepository) SaveIntegration(ctx context.Context, integration *models.NotionIntegration) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	now := time.Now()
	integration.UpdatedAt = now
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO notion_integrations
			(id, project_id, workspace_id, workspace_name, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			workspace_name = EXCLUDED.workspace_name,
			access_token = EXCLUDED.access_token,
			updated_at = EXCLUDED.updated_at`,
		integration.ID, integration.ProjectID, integration.WorkspaceID,
		integration.WorkspaceName, integration.AccessToken,
		integration.CreatedAt, integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notion integration: %w", err)
	}
	return nil
}

func (r *notionRepository) GetIntegration(ctx context.Context, projectID uuid.UUID) (*models.NotionIntegration, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var n models.NotionIntegration
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, project_id, workspace_id, workspace_name, access_token, created_at, updated_at
		FROM notion_integrations
		WHERE project_id = $1`, projectID).Scan(
		&n.ID, &n.ProjectID, &n.WorkspaceID, &n.WorkspaceName,
		&n.AccessToken, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotionNotConnected
		}
		return nil, fmt.Errorf("failed to get notion integration: %w", err)
	}
	return &n, nil
}

func (r *notionRepository) DeleteIntegration(ctx context.Context, projectID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM notion_database_mappings WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to delete notion mappings: %w", err)
	}

	result, err := tx.Exec(ctx,
		`DELETE FROM notion_integrations WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete notion integration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotionNotConnected
	}

	return tx.Commit(ctx)
}

func (r *notionRepository) ReplaceMappings(ctx context.Context, projectID uuid.UUID, mappings []*models.NotionDatabaseMapping) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM notion_database_mappings WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear notion mappings: %w", err)
	}

	now := time.Now()
	for _, m := range mappings {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ProjectID = projectID
		m.CreatedAt = now

		_, err := tx.Exec(ctx, `
			INSERT INTO notion_database_mappings
				(id, project_id, kind, database_id, database_name, relation_property_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			m.ID, m.ProjectID, m.Kind, m.DatabaseID, m.DatabaseName,
			m.RelationPropertyID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert notion mapping for %s: %w", m.Kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit notion mappings: %w", err)
	}
	return nil
}

func (r *notionRepository) GetMappings(ctx context.Context, projectID uuid.UUID) ([]*models.NotionDatabaseMapping, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, project_id, kind, database_id, database_name, COALESCE(relation_property_id, ''), created_at
		FROM notion_database_mappings
		WHERE project_id = $1
		ORDER BY kind`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notion mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.NotionDatabaseMapping
	for rows.Next() {
		var m models.NotionDatabaseMapping
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Kind, &m.DatabaseID,
			&m.DatabaseName, &m.RelationPropertyID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notion mapping: %w", err)
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// Ensure notionRepository implements NotionRepository at compile time.
var _ NotionRepository = (*notionRepository)(nil)
