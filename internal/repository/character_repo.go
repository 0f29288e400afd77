package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
)

const characterColumns = `id, project_id, name, description, art_style, image_path, created_at, updated_at`

type CharacterRepo struct {
	pool *pgxpool.Pool
}

func NewCharacterRepo(pool *pgxpool.Pool) *CharacterRepo {
	return &CharacterRepo{pool: pool}
}

func scanCharacter(row pgx.Row) (*models.Character, error) {
	var c models.Character
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.ArtStyle, &c.ImagePath, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateIfAbsent inserts the character unless (project_id, name) already
// exists, in which case the existing row is returned unchanged and created is false.
func (r *CharacterRepo) CreateIfAbsent(ctx context.Context, c *models.Character) (*models.Character, bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	inserted, err := scanCharacter(r.pool.QueryRow(ctx, `
		INSERT INTO characters (id, project_id, name, description, art_style)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, name) DO NOTHING
		RETURNING `+characterColumns,
		c.ID, c.ProjectID, c.Name, c.Description, c.ArtStyle))
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	existing, err := scanCharacter(r.pool.QueryRow(ctx, `
		SELECT `+characterColumns+` FROM characters WHERE project_id = $1 AND name = $2
	`, c.ProjectID, c.Name))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *CharacterRepo) Get(ctx context.Context, projectID, id uuid.UUID) (*models.Character, error) {
	return scanCharacter(r.pool.QueryRow(ctx, `
		SELECT `+characterColumns+` FROM characters WHERE id = $1 AND project_id = $2
	`, id, projectID))
}

// GetForUser looks a character up by id alone, scoped to projects owned by userID.
func (r *CharacterRepo) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Character, error) {
	return scanCharacter(r.pool.QueryRow(ctx, `
		SELECT c.id, c.project_id, c.name, c.description, c.art_style, c.image_path, c.created_at, c.updated_at
		FROM characters c JOIN projects p ON p.id = c.project_id
		WHERE c.id = $1 AND p.user_id = $2
	`, id, userID))
}

func (r *CharacterRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+characterColumns+` FROM characters WHERE project_id = $1 ORDER BY created_at, name
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SetImagePath stores a new image path and returns the path it replaced, if any.
func (r *CharacterRepo) SetImagePath(ctx context.Context, projectID, id uuid.UUID, path string) (*string, error) {
	var previous *string
	err := r.pool.QueryRow(ctx, `
		WITH old AS (
			SELECT image_path FROM characters WHERE id = $1 AND project_id = $2 FOR UPDATE
		)
		UPDATE characters SET image_path = $3, updated_at = now()
		WHERE id = $1 AND project_id = $2
		RETURNING (SELECT image_path FROM old)
	`, id, projectID, path).Scan(&previous)
	if err != nil {
		return nil, notFound(err)
	}
	return previous, nil
}
