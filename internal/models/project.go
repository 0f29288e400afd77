package models

import (
	"time"

	"github.com/google/uuid"
)

// Project status enums.
const (
	ProjectStatusDraft      = "draft"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusPublished  = "published"
)

// ValidProjectStatus reports whether s is a known project status.
func ValidProjectStatus(s string) bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusPublished:
		return true
	}
	return false
}

type Project struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Story     string    `json:"story"`
	ArtStyle  *string   `json:"art_style,omitempty"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectPatch carries the optional fields of a partial project update.
type ProjectPatch struct {
	Title    *string
	Status   *string
	Story    *string
	ArtStyle *string
	Steps    *int
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Status == nil && p.Story == nil && p.ArtStyle == nil && p.Steps == nil
}
