package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/database"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

// DesignFileRepository defines the interface for design-file data access.
type DesignFileRepository interface {
	CreateBatch(ctx context.Context, files []*models.DesignFile) error
	Get(ctx context.Context, id uuid.UUID) (*models.DesignFile, error)

	// GetByEpic returns all files of an epic in pipeline order: main
	// screens by order index, each followed by its sub-screens by order
	// index.
	GetByEpic(ctx context.Context, epicID uuid.UUID) ([]*models.DesignFile, error)

	// ApplyRewrites applies a batch of filename/description/parent/order
	// rewrites in a single transaction. The max-depth-2 invariant is
	// validated against the epic's full file set inside the transaction;
	// a violating batch fails without touching any row.
	ApplyRewrites(ctx context.Context, epicID uuid.UUID, rewrites []models.FileRewrite) error

	// SetScreenDoc replaces the generated doc for one file. When the file
	// already had a doc the regeneration counter increments by one.
	SetScreenDoc(ctx context.Context, id uuid.UUID, doc string) error

	SetTranscriptionFragment(ctx context.Context, id uuid.UUID, fragment string) error

	// GetByObjectKey resolves a file by its storage key. Used when
	// matching redistributed narration fragments back to screens.
	GetByObjectKey(ctx context.Context, epicID uuid.UUID, objectKey string) (*models.DesignFile, error)

	// Delete removes one file and returns its object key so the caller
	// can clean up storage. Children of a deleted main screen are
	// promoted to main screens.
	Delete(ctx context.Context, id uuid.UUID) (string, error)

	// DeleteByEpic removes all files of an epic and returns their object keys.
	DeleteByEpic(ctx context.Context, epicID uuid.UUID) ([]string, error)
}

type designFileRepository struct{}

// NewDesignFileRepository creates a new design-file repository.
func NewDesignFileRepository() DesignFileRepository {
	return &designFileRepository{}
}

const designFileColumns = `id, epic_id, parent_id, object_key, filename,
	COALESCE(description, ''), COALESCE(screen_doc, ''), screen_doc_regen_count,
	order_index, COALESCE(transcription_fragment, ''), created_at, updated_at`

func scanDesignFile(row pgx.Row) (*models.DesignFile, error) {
	var f models.DesignFile
	var parentID uuid.NullUUID
	err := row.Scan(
		&f.ID,
		&f.EpicID,
		&parentID,
		&f.ObjectKey,
		&f.Filename,
		&f.Description,
		&f.ScreenDoc,
		&f.ScreenDocRegenCount,
		&f.OrderIndex,
		&f.TranscriptionFragment,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan design file: %w", err)
	}
	if parentID.Valid {
		f.ParentID = parentID.UUID
	}
	return &f, nil
}

// nullableParent converts uuid.Nil to a SQL NULL.
func nullableParent(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (r *designFileRepository) CreateBatch(ctx context.Context, files []*models.DesignFile) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}
	if len(files) == 0 {
		return nil
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	for _, f := range files {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.CreatedAt = now
		f.UpdatedAt = now

		_, err := tx.Exec(ctx, `
			INSERT INTO design_files
				(id, epic_id, parent_id, object_key, filename, description,
				 screen_doc_regen_count, order_index, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`,
			f.ID, f.EpicID, nullableParent(f.ParentID), f.ObjectKey, f.Filename,
			f.Description, f.OrderIndex, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert design file %s: %w", f.Filename, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit design files: %w", err)
	}
	return nil
}

func (r *designFileRepository) Get(ctx context.Context, id uuid.UUID) (*models.DesignFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + designFileColumns + ` FROM design_files WHERE id = $1`
	return scanDesignFile(scope.Conn.QueryRow(ctx, query, id))
}

func (r *designFileRepository) GetByEpic(ctx context.Context, epicID uuid.UUID) ([]*models.DesignFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	// Mains first by their order, each followed by its children by theirs.
	query := `SELECT ` + designFileColumns + `
		FROM design_files
		WHERE epic_id = $1
		ORDER BY COALESCE(parent_id, id), (parent_id IS NOT NULL), order_index`

	rows, err := scope.Conn.Query(ctx, query, epicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list design files: %w", err)
	}
	defer rows.Close()

	var files []*models.DesignFile
	for rows.Next() {
		f, err := scanDesignFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orderForPipeline(files), nil
}

// orderForPipeline sorts mains by order index with each main's children
// (by order index) directly after it. The SQL grouping above keeps
// families together; this pass fixes the global main ordering.
func orderForPipeline(files []*models.DesignFile) []*models.DesignFile {
	var mains []*models.DesignFile
	children := make(map[uuid.UUID][]*models.DesignFile)
	for _, f := range files {
		if f.IsMain() {
			mains = append(mains, f)
		} else {
			children[f.ParentID] = append(children[f.ParentID], f)
		}
	}

	sortByOrderIndex(mains)
	out := make([]*models.DesignFile, 0, len(files))
	for _, m := range mains {
		out = append(out, m)
		kids := children[m.ID]
		sortByOrderIndex(kids)
		out = append(out, kids...)
	}
	return out
}

func sortByOrderIndex(files []*models.DesignFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].OrderIndex < files[j].OrderIndex
	})
}

func (r *designFileRepository) ApplyRewrites(ctx context.Context, epicID uuid.UUID, rewrites []models.FileRewrite) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}
	if len(rewrites) == 0 {
		return nil
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the epic's files and validate the resulting tree before
	// writing anything.
	rows, err := tx.Query(ctx,
		`SELECT id, parent_id FROM design_files WHERE epic_id = $1 FOR UPDATE`, epicID)
	if err != nil {
		return fmt.Errorf("failed to lock design files: %w", err)
	}

	current := make(map[uuid.UUID]*models.DesignFile)
	for rows.Next() {
		var id uuid.UUID
		var parentID uuid.NullUUID
		if err := rows.Scan(&id, &parentID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan design file: %w", err)
		}
		f := &models.DesignFile{ID: id, EpicID: epicID}
		if parentID.Valid {
			f.ParentID = parentID.UUID
		}
		current[id] = f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if !models.ValidateTreeDepth(current, rewrites) {
		return apperrors.NewValidation("rewrites", "rearrangement exceeds max screen nesting depth")
	}

	now := time.Now()
	for _, rw := range rewrites {
		result, err := tx.Exec(ctx, `
			UPDATE design_files
			SET filename = $2, description = $3, parent_id = $4, order_index = $5, updated_at = $6
			WHERE id = $1`,
			rw.FileID, rw.Filename, rw.Description, nullableParent(rw.ParentID), rw.OrderIndex, now)
		if err != nil {
			return fmt.Errorf("failed to rewrite design file %s: %w", rw.FileID, err)
		}
		if result.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rewrites: %w", err)
	}
	return nil
}

func (r *designFileRepository) SetScreenDoc(ctx context.Context, id uuid.UUID, doc string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE design_files
		SET screen_doc = $2,
		    screen_doc_regen_count = CASE WHEN screen_doc IS NULL OR screen_doc = '' THEN screen_doc_regen_count ELSE screen_doc_regen_count + 1 END,
		    updated_at = $3
		WHERE id = $1`,
		id, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set screen doc: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *designFileRepository) SetTranscriptionFragment(ctx context.Context, id uuid.UUID, fragment string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE design_files SET transcription_fragment = $2, updated_at = $3 WHERE id = $1`,
		id, fragment, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set transcription fragment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *designFileRepository) GetByObjectKey(ctx context.Context, epicID uuid.UUID, objectKey string) (*models.DesignFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + designFileColumns + ` FROM design_files WHERE epic_id = $1 AND object_key = $2`
	return scanDesignFile(scope.Conn.QueryRow(ctx, query, epicID, objectKey))
}

func (r *designFileRepository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return "", fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Promote children so the tree never points at a missing parent.
	if _, err := tx.Exec(ctx,
		`UPDATE design_files SET parent_id = NULL, updated_at = $2 WHERE parent_id = $1`,
		id, time.Now()); err != nil {
		return "", fmt.Errorf("failed to promote child files: %w", err)
	}

	var objectKey string
	err = tx.QueryRow(ctx,
		`DELETE FROM design_files WHERE id = $1 RETURNING object_key`, id).Scan(&objectKey)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to delete design file: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit delete: %w", err)
	}
	return objectKey, nil
}

func (r *designFileRepository) DeleteByEpic(ctx context.Context, epicID uuid.UUID) ([]string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`DELETE FROM design_files WHERE epic_id = $1 RETURNING object_key`, epicID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete design files: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan object key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Ensure designFileRepository implements DesignFileRepository at compile time.
var _ DesignFileRepository = (*designFileRepository)(nil)
