// Package dbtest starts a disposable Postgres with the application schema for
// repository integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/toonsmith/backend/internal/database"
)

// Start runs a postgres container, applies migrations and returns a pool.
// The container is terminated when t finishes. Skipped under -short or
// when no container runtime is reachable.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("toonsmith_test"),
		postgres.WithUsername("toonsmith"),
		postgres.WithPassword("toonsmith"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(pool), "apply migrations")
	return pool
}

// Reset empties every application table.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE profiles, stripe_events RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

// Profile is the subset of a profiles row a test seeds.
type Profile struct {
	Plan               string
	MonthStart         time.Time
	BaseLimit          int
	BonusCredits       int
	Used               int
	CurrentPlanCredits int
}

// SeedProfile inserts a profile and returns its user id.
func SeedProfile(t *testing.T, pool *pgxpool.Pool, p Profile) uuid.UUID {
	t.Helper()
	if p.Plan == "" {
		p.Plan = "free"
	}
	userID := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO profiles (user_id, email, plan, month_start, monthly_base_limit,
			monthly_bonus_credits, monthly_used, current_plan_credits)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
	`, userID, userID.String()+"@example.com", p.Plan, p.MonthStart, p.BaseLimit,
		p.BonusCredits, p.Used, p.CurrentPlanCredits)
	require.NoError(t, err)
	return userID
}

// SeedProject inserts a draft project owned by userID and returns its id.
func SeedProject(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO projects (user_id, title) VALUES ($1, 'Flooded City') RETURNING id
	`, userID).Scan(&id)
	require.NoError(t, err)
	return id
}
