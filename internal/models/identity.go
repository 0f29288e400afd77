package models

import "github.com/google/uuid"

// Identity is the authenticated caller, threaded through request contexts.
type Identity struct {
	UserID    uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	SessionID string    `json:"-"`
}
