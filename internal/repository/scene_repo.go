package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
)

// renumberOffset moves rows out of the unique (project_id, scene_no) range
// while they are being shifted.
const renumberOffset = 1000000

type SceneRepo struct {
	pool *pgxpool.Pool
}

func NewSceneRepo(pool *pgxpool.Pool) *SceneRepo {
	return &SceneRepo{pool: pool}
}

// ReplaceAll swaps the project's storyboard for drafts, numbered from 1.
// Previously rendered images are dropped and their paths returned. A
// concurrent replace of the same project surfaces as ErrConflict.
func (r *SceneRepo) ReplaceAll(ctx context.Context, projectID uuid.UUID, drafts []models.SceneDraft) ([]*models.GeneratedScene, []string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `DELETE FROM scene_images WHERE project_id = $1 RETURNING image_path`, projectID)
	if err != nil {
		return nil, nil, err
	}
	removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM generated_scenes WHERE project_id = $1`, projectID); err != nil {
		return nil, nil, err
	}

	scenes := make([]*models.GeneratedScene, 0, len(drafts))
	for i, d := range drafts {
		s := &models.GeneratedScene{
			ID:               uuid.New(),
			ProjectID:        projectID,
			SceneNo:          i + 1,
			StoryText:        d.StoryText,
			SceneDescription: d.SceneDescription,
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO generated_scenes (id, project_id, scene_no, story_text, scene_description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`, s.ID, s.ProjectID, s.SceneNo, s.StoryText, s.SceneDescription).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, nil, conflict(err)
		}
		scenes = append(scenes, s)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return scenes, removed, nil
}

// ListByProject returns scenes in ascending scene_no with their image path, if rendered.
func (r *SceneRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.GeneratedScene, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.project_id, s.scene_no, s.story_text, s.scene_description, i.image_path, s.created_at, s.updated_at
		FROM generated_scenes s
		LEFT JOIN scene_images i ON i.project_id = s.project_id AND i.scene_no = s.scene_no
		WHERE s.project_id = $1
		ORDER BY s.scene_no ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.GeneratedScene{}
	for rows.Next() {
		var s models.GeneratedScene
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.SceneNo, &s.StoryText, &s.SceneDescription, &s.ImagePath, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

func (r *SceneRepo) Get(ctx context.Context, projectID uuid.UUID, sceneNo int) (*models.GeneratedScene, error) {
	var s models.GeneratedScene
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.project_id, s.scene_no, s.story_text, s.scene_description, i.image_path, s.created_at, s.updated_at
		FROM generated_scenes s
		LEFT JOIN scene_images i ON i.project_id = s.project_id AND i.scene_no = s.scene_no
		WHERE s.project_id = $1 AND s.scene_no = $2
	`, projectID, sceneNo).Scan(&s.ID, &s.ProjectID, &s.SceneNo, &s.StoryText, &s.SceneDescription, &s.ImagePath, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SceneRepo) UpdateDescription(ctx context.Context, projectID uuid.UUID, sceneNo int, description string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generated_scenes SET scene_description = $3, updated_at = now()
		WHERE project_id = $1 AND scene_no = $2
	`, projectID, sceneNo, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a scene and its image row, then shifts later scenes down
// by one so numbering stays contiguous. It returns the removed image path.
func (r *SceneRepo) Delete(ctx context.Context, projectID uuid.UUID, sceneNo int) (*string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM generated_scenes WHERE project_id = $1 AND scene_no = $2`, projectID, sceneNo)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	var removed *string
	err = tx.QueryRow(ctx, `
		DELETE FROM scene_images WHERE project_id = $1 AND scene_no = $2 RETURNING image_path
	`, projectID, sceneNo).Scan(&removed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	for _, table := range []string{"generated_scenes", "scene_images"} {
		if _, err := tx.Exec(ctx, `UPDATE `+table+` SET scene_no = scene_no + $3 WHERE project_id = $1 AND scene_no > $2`,
			projectID, sceneNo, renumberOffset); err != nil {
			return nil, conflict(err)
		}
		if _, err := tx.Exec(ctx, `UPDATE `+table+` SET scene_no = scene_no - $2 - 1, updated_at = now() WHERE project_id = $1 AND scene_no > $2`,
			projectID, renumberOffset); err != nil {
			return nil, conflict(err)
		}
	}
	return removed, tx.Commit(ctx)
}

// UpsertImage records path as the scene's render and returns the path it replaced, if any.
func (r *SceneRepo) UpsertImage(ctx context.Context, projectID uuid.UUID, sceneNo int, path string) (*string, error) {
	var previous *string
	err := r.pool.QueryRow(ctx, `
		WITH old AS (
			SELECT image_path FROM scene_images WHERE project_id = $1 AND scene_no = $2
		)
		INSERT INTO scene_images (project_id, scene_no, image_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, scene_no) DO UPDATE SET image_path = EXCLUDED.image_path, updated_at = now()
		RETURNING (SELECT image_path FROM old)
	`, projectID, sceneNo, path).Scan(&previous)
	if err != nil {
		return nil, err
	}
	return previous, nil
}
