package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist within the caller's ownership scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create would violate a uniqueness expectation.
	ErrConflict = errors.New("already exists")
)

// notFound converts pgx.ErrNoRows into ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// conflict converts a unique_violation into ErrConflict and passes other errors through.
func conflict(err error) error {
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
