package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedScene is one panel of a project's storyboard. SceneNo is 1-based
// and unique per project.
type GeneratedScene struct {
	ID               uuid.UUID `json:"id"`
	ProjectID        uuid.UUID `json:"project_id"`
	SceneNo          int       `json:"scene_no"`
	StoryText        string    `json:"story_text"`
	SceneDescription string    `json:"scene_description"`
	ImagePath        *string   `json:"image_path,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SceneImage records the stored render of a scene. (ProjectID, SceneNo) is unique.
type SceneImage struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	SceneNo   int       `json:"scene_no"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SceneDraft is a scene produced by the story splitter before it is stored.
type SceneDraft struct {
	StoryText        string `json:"Story_Text"`
	SceneDescription string `json:"Scene_Description"`
}
