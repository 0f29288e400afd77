package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	unique := fmt.Errorf("insert scene: %w", &pgconn.PgError{Code: "23505", ConstraintName: "generated_scenes_project_id_scene_no_key"})
	check := &pgconn.PgError{Code: "23514"}
	other := errors.New("connection reset")

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(check))

	assert.ErrorIs(t, conflict(unique), ErrConflict)
	assert.Equal(t, check, conflict(check))
	assert.Equal(t, other, conflict(other))

	assert.ErrorIs(t, notFound(pgx.ErrNoRows), ErrNotFound)
	assert.Equal(t, other, notFound(other))
}
