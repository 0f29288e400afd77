package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
)

const defaultProjectTitle = "Untitled webtoon"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertProfile creates the profile on first sign-in, seeding the free
// allowance and a starter draft project; later sign-ins refresh the email.
func (r *Repository) UpsertProfile(ctx context.Context, userID uuid.UUID, email string, freeCredits int) (*models.Profile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO profiles (user_id, email, monthly_base_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
		RETURNING (xmax = 0)
	`, userID, email, freeCredits).Scan(&created)
	if err != nil {
		return nil, err
	}
	if created {
		if _, err := tx.Exec(ctx, `INSERT INTO projects (user_id, title) VALUES ($1, $2)`, userID, defaultProjectTitle); err != nil {
			return nil, err
		}
	}
	prof, err := repository.ScanProfile(tx.QueryRow(ctx, `
		SELECT `+repository.ProfileColumns()+` FROM profiles WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, err
	}
	return prof, tx.Commit(ctx)
}

func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return repository.ScanProfile(r.pool.QueryRow(ctx, `
		SELECT `+repository.ProfileColumns()+` FROM profiles WHERE user_id = $1
	`, userID))
}
