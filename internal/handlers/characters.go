package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/services"
)

type CharacterStore interface {
	CreateIfAbsent(ctx context.Context, c *models.Character) (*models.Character, bool, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Character, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error)
	SetImagePath(ctx context.Context, projectID, id uuid.UUID, path string) (*string, error)
}

// URLResolver turns a storage key into a public URL.
type URLResolver interface {
	PublicURL(key string) string
}

// CharacterHandler serves /api/characters.
type CharacterHandler struct {
	projects   ProjectStore
	characters CharacterStore
	urls       URLResolver
	cleanup    services.CleanupQueue
	log        *slog.Logger
}

func NewCharacterHandler(projects ProjectStore, characters CharacterStore, urls URLResolver, cleanup services.CleanupQueue, log *slog.Logger) *CharacterHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CharacterHandler{projects: projects, characters: characters, urls: urls, cleanup: cleanup, log: log}
}

func (h *CharacterHandler) withURL(c *models.Character) *models.Character {
	if c.ImagePath != nil && *c.ImagePath != "" {
		c.ImageURL = h.urls.PublicURL(*c.ImagePath)
	}
	return c
}

func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	projectID, ok := queryUUID(w, r, h.log, "projectId")
	if !ok {
		return
	}
	if _, err := h.projects.GetForUser(r.Context(), projectID, user.UserID); err != nil {
		fail(w, h.log, err)
		return
	}
	list, err := h.characters.ListByProject(r.Context(), projectID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	for _, c := range list {
		h.withURL(c)
	}
	apierror.WriteJSON(w, http.StatusOK, list)
}

type createCharacterRequest struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ArtStyle    string    `json:"artStyle"`
}

// Create inserts a character. A character whose name already exists in the
// project is returned as stored; its fields are not overwritten.
func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req createCharacterRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.ProjectID == uuid.Nil || req.Name == "" || req.Description == "" {
		apierror.Write(w, h.log, apierror.BadRequest("projectId, name and description are required"))
		return
	}
	project, err := h.projects.GetForUser(r.Context(), req.ProjectID, user.UserID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	artStyle := req.ArtStyle
	if artStyle == "" && project.ArtStyle != nil {
		artStyle = *project.ArtStyle
	}
	c, created, err := h.characters.CreateIfAbsent(r.Context(), &models.Character{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		ArtStyle:    artStyle,
	})
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if created {
		if err := h.projects.Touch(r.Context(), req.ProjectID); err != nil {
			h.log.Warn("touch project", "project_id", req.ProjectID, "error", err)
		}
	}
	apierror.WriteJSON(w, http.StatusOK, h.withURL(c))
}

type updateCharacterRequest struct {
	ID        uuid.UUID `json:"id"`
	ImagePath string    `json:"imagePath"`
}

// Update points a character at a new stored image. The path must live under
// the character's project.
func (h *CharacterHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req updateCharacterRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ID == uuid.Nil || req.ImagePath == "" {
		apierror.Write(w, h.log, apierror.BadRequest("id and imagePath are required"))
		return
	}
	c, err := h.characters.GetForUser(r.Context(), req.ID, user.UserID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if !strings.HasPrefix(req.ImagePath, fmt.Sprintf("projects/%s/", c.ProjectID)) {
		apierror.Write(w, h.log, apierror.BadRequest("imagePath does not belong to this project"))
		return
	}
	prev, err := h.characters.SetImagePath(r.Context(), c.ProjectID, c.ID, req.ImagePath)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if prev != nil && *prev != req.ImagePath && h.cleanup != nil {
		if err := h.cleanup.EnqueueCleanup(context.WithoutCancel(r.Context()), *prev); err != nil {
			h.log.Warn("enqueue character image cleanup", "character_id", c.ID, "error", err)
		}
	}
	c.ImagePath = &req.ImagePath
	apierror.WriteJSON(w, http.StatusOK, h.withURL(c))
}
