package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
)

const projectColumns = `id, user_id, title, status, story, art_style, steps, created_at, updated_at`

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Status, &p.Story, &p.ArtStyle, &p.Steps, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusDraft
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO projects (id, user_id, title, status, story, art_style, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, p.ID, p.UserID, p.Title, p.Status, p.Story, p.ArtStyle, p.Steps).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetForUser returns the project only if it belongs to userID.
func (r *ProjectRepo) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2
	`, id, userID))
}

func (r *ProjectRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Update applies the non-nil fields of patch.
func (r *ProjectRepo) Update(ctx context.Context, id, userID uuid.UUID, patch models.ProjectPatch) (*models.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `
		UPDATE projects SET
			title = COALESCE($3, title),
			status = COALESCE($4, status),
			story = COALESCE($5, story),
			art_style = COALESCE($6, art_style),
			steps = COALESCE($7, steps),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+projectColumns,
		id, userID, patch.Title, patch.Status, patch.Story, patch.ArtStyle, patch.Steps))
}

// Touch bumps updated_at on a project after a child row changed.
func (r *ProjectRepo) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE projects SET updated_at = now() WHERE id = $1`, id)
	return err
}

// CreateArtStyle sets the art style only when none is set yet.
func (r *ProjectRepo) CreateArtStyle(ctx context.Context, id, userID uuid.UUID, style string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET art_style = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND art_style IS NULL
	`, id, userID, style)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetForUser(ctx, id, userID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// UpdateArtStyle replaces an existing art style; ErrNotFound when unset.
func (r *ProjectRepo) UpdateArtStyle(ctx context.Context, id, userID uuid.UUID, style string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET art_style = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND art_style IS NOT NULL
	`, id, userID, style)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the project (children cascade) and returns the storage
// paths that were referenced by its characters and scene images.
func (r *ProjectRepo) Delete(ctx context.Context, id, userID uuid.UUID) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT image_path FROM characters WHERE project_id = $1 AND image_path IS NOT NULL
		UNION ALL
		SELECT image_path FROM scene_images WHERE project_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect image paths: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return paths, tx.Commit(ctx)
}
