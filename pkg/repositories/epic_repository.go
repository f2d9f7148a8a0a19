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

// EpicRepository defines the interface for epic data access.
type EpicRepository interface {
	Create(ctx context.Context, epic *models.Epic) error
	Get(ctx context.Context, id uuid.UUID) (*models.Epic, error)
	GetByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Epic, error)
	Update(ctx context.Context, epic *models.Epic) error

	// UpdateStage moves the epic from one stage to the next. The WHERE
	// clause pins the current stage so a concurrent transition cannot
	// move the epic backward or apply twice; a conflicting write returns
	// apperrors.ErrInvalidTransition.
	UpdateStage(ctx context.Context, id uuid.UUID, from, to models.Stage) error

	// SetBackendLogic persists the accumulated narration transcription
	// and the audio object key (empty key clears it).
	SetBackendLogic(ctx context.Context, id uuid.UUID, transcription, audioKey string) error

	Delete(ctx context.Context, id uuid.UUID) error
}

type epicRepository struct{}

// NewEpicRepository creates a new epic repository.
func NewEpicRepository() EpicRepository {
	return &epicRepository{}
}

const epicColumns = `id, project_id, name, description, speciality, stage,
	COALESCE(backend_logic_transcription, ''), COALESCE(backend_logic_audio_key, ''),
	created_at, updated_at`

func scanEpic(row pgx.Row) (*models.Epic, error) {
	var e models.Epic
	err := row.Scan(
		&e.ID,
		&e.ProjectID,
		&e.Name,
		&e.Description,
		&e.Speciality,
		&e.Stage,
		&e.BackendLogicTranscription,
		&e.BackendLogicAudioKey,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan epic: %w", err)
	}
	return &e, nil
}

func (r *epicRepository) Create(ctx context.Context, epic *models.Epic) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if epic.ID == uuid.Nil {
		epic.ID = uuid.New()
	}
	now := time.Now()
	epic.CreatedAt = now
	epic.UpdatedAt = now
	if epic.Stage == "" {
		epic.Stage = models.StageDraft
	}

	query := `
		INSERT INTO epics (id, project_id, name, description, speciality, stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := scope.Conn.Exec(ctx, query,
		epic.ID,
		epic.ProjectID,
		epic.Name,
		epic.Description,
		epic.Speciality,
		epic.Stage,
		epic.CreatedAt,
		epic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create epic: %w", err)
	}

	return nil
}

func (r *epicRepository) Get(ctx context.Context, id uuid.UUID) (*models.Epic, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + epicColumns + ` FROM epics WHERE id = $1`
	return scanEpic(scope.Conn.QueryRow(ctx, query, id))
}

func (r *epicRepository) GetByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Epic, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + epicColumns + ` FROM epics WHERE project_id = $1 ORDER BY created_at`

	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list epics: %w", err)
	}
	defer rows.Close()

	var epics []*models.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, err
		}
		epics = append(epics, e)
	}

	return epics, rows.Err()
}

func (r *epicRepository) Update(ctx context.Context, epic *models.Epic) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	epic.UpdatedAt = time.Now()

	query := `
		UPDATE epics
		SET name = $2, description = $3, speciality = $4, updated_at = $5
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query,
		epic.ID, epic.Name, epic.Description, epic.Speciality, epic.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update epic: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *epicRepository) UpdateStage(ctx context.Context, id uuid.UUID, from, to models.Stage) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if !from.CanTransitionTo(to) {
		return apperrors.ErrInvalidTransition
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE epics SET stage = $3, updated_at = $4 WHERE id = $1 AND stage = $2`,
		id, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update epic stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Row missing or stage moved underneath us.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return apperrors.ErrInvalidTransition
	}

	return nil
}

func (r *epicRepository) SetBackendLogic(ctx context.Context, id uuid.UUID, transcription, audioKey string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE epics
		 SET backend_logic_transcription = $2, backend_logic_audio_key = NULLIF($3, ''), updated_at = $4
		 WHERE id = $1`,
		id, transcription, audioKey, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update backend logic: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes an epic. Design files and artifacts cascade.
func (r *epicRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM epics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete epic: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure epicRepository implements EpicRepository at compile time.
var _ EpicRepository = (*epicRepository)(nil)
