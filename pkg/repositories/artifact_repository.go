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

// ArtifactRepository defines the interface for generated-artifact data access.
type ArtifactRepository interface {
	// Upsert writes the artifact for (epic, sub-scope). The first write
	// leaves the regeneration counter at zero; every later write for the
	// same pair replaces the content and increments the counter by one.
	Upsert(ctx context.Context, artifact *models.Artifact) (*models.Artifact, error)

	Get(ctx context.Context, epicID uuid.UUID, subScope string) (*models.Artifact, error)
	GetByEpic(ctx context.Context, epicID uuid.UUID) ([]*models.Artifact, error)
	DeleteByEpic(ctx context.Context, epicID uuid.UUID) error
}

type artifactRepository struct{}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository() ArtifactRepository {
	return &artifactRepository{}
}

const artifactColumns = `id, epic_id, sub_scope, content, regenerate_count, created_at, updated_at`

func scanArtifact(row pgx.Row) (*models.Artifact, error) {
	var a models.Artifact
	err := row.Scan(
		&a.ID,
		&a.EpicID,
		&a.SubScope,
		&a.Content,
		&a.RegenerateCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	return &a, nil
}

func (r *artifactRepository) Upsert(ctx context.Context, artifact *models.Artifact) (*models.Artifact, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO artifacts (id, epic_id, sub_scope, content, regenerate_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (epic_id, sub_scope) DO UPDATE SET
			content = EXCLUDED.content,
			regenerate_count = artifacts.regenerate_count + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + artifactColumns

	stored, err := scanArtifact(scope.Conn.QueryRow(ctx, query,
		artifact.ID, artifact.EpicID, artifact.SubScope, artifact.Content, now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return stored, nil
}

func (r *artifactRepository) Get(ctx context.Context, epicID uuid.UUID, subScope string) (*models.Artifact, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE epic_id = $1 AND sub_scope = $2`
	return scanArtifact(scope.Conn.QueryRow(ctx, query, epicID, subScope))
}

func (r *artifactRepository) GetByEpic(ctx context.Context, epicID uuid.UUID) ([]*models.Artifact, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE epic_id = $1 ORDER BY sub_scope`
	rows, err := scope.Conn.Query(ctx, query, epicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (r *artifactRepository) DeleteByEpic(ctx context.Context, epicID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if _, err := scope.Conn.Exec(ctx, `DELETE FROM artifacts WHERE epic_id = $1`, epicID); err != nil {
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}
	return nil
}

// Ensure artifactRepository implements ArtifactRepository at compile time.
var _ ArtifactRepository = (*artifactRepository)(nil)
