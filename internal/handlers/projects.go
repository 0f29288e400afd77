package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/services"
)

// ProjectStore is the subset of the project repository the handlers use.
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Project, error)
	Update(ctx context.Context, id, userID uuid.UUID, patch models.ProjectPatch) (*models.Project, error)
	Delete(ctx context.Context, id, userID uuid.UUID) ([]string, error)
	CreateArtStyle(ctx context.Context, id, userID uuid.UUID, style string) error
	UpdateArtStyle(ctx context.Context, id, userID uuid.UUID, style string) error
	Touch(ctx context.Context, id uuid.UUID) error
}

// ProjectHandler serves /api/projects and /api/art-style.
type ProjectHandler struct {
	projects ProjectStore
	cleanup  services.CleanupQueue
	log      *slog.Logger
}

func NewProjectHandler(projects ProjectStore, cleanup services.CleanupQueue, log *slog.Logger) *ProjectHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProjectHandler{projects: projects, cleanup: cleanup, log: log}
}

// --- GET /api/projects ---

// List returns the caller's projects, or one project with ?id=.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	if r.URL.Query().Has("id") {
		id, ok := queryUUID(w, r, h.log, "id")
		if !ok {
			return
		}
		p, err := h.projects.GetForUser(r.Context(), id, user.UserID)
		if err != nil {
			fail(w, h.log, err)
			return
		}
		apierror.WriteJSON(w, http.StatusOK, p)
		return
	}
	list, err := h.projects.ListByUser(r.Context(), user.UserID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, list)
}

// --- POST /api/projects ---

type createProjectRequest struct {
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Story    string  `json:"story"`
	ArtStyle *string `json:"art_style"`
	Steps    int     `json:"steps"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req createProjectRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		apierror.Write(w, h.log, apierror.BadRequest("title is required"))
		return
	}
	if req.Status != "" && !models.ValidProjectStatus(req.Status) {
		apierror.Write(w, h.log, apierror.BadRequest("invalid status"))
		return
	}
	p := &models.Project{
		UserID:   user.UserID,
		Title:    req.Title,
		Status:   req.Status,
		Story:    req.Story,
		ArtStyle: req.ArtStyle,
		Steps:    req.Steps,
	}
	if err := h.projects.Create(r.Context(), p); err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, p)
}

// --- PATCH /api/projects ---

type updateProjectRequest struct {
	ID       uuid.UUID `json:"id"`
	Title    *string   `json:"title"`
	Status   *string   `json:"status"`
	Story    *string   `json:"story"`
	ArtStyle *string   `json:"art_style"`
	Steps    *int      `json:"steps"`
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req updateProjectRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ID == uuid.Nil {
		apierror.Write(w, h.log, apierror.BadRequest("id is required"))
		return
	}
	if req.Status != nil && !models.ValidProjectStatus(*req.Status) {
		apierror.Write(w, h.log, apierror.BadRequest("invalid status"))
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		apierror.Write(w, h.log, apierror.BadRequest("title cannot be empty"))
		return
	}
	patch := models.ProjectPatch{
		Title:    req.Title,
		Status:   req.Status,
		Story:    req.Story,
		ArtStyle: req.ArtStyle,
		Steps:    req.Steps,
	}
	p, err := h.projects.Update(r.Context(), req.ID, user.UserID, patch)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, p)
}

// --- DELETE /api/projects ---

// Delete removes the project; rows cascade and its stored images are
// queued for deletion.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	id, ok := queryUUID(w, r, h.log, "id")
	if !ok {
		return
	}
	paths, err := h.projects.Delete(r.Context(), id, user.UserID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if len(paths) > 0 && h.cleanup != nil {
		if err := h.cleanup.EnqueueCleanup(context.WithoutCancel(r.Context()), paths...); err != nil {
			h.log.Warn("enqueue project storage cleanup", "project_id", id, "error", err)
		}
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// --- /api/art-style ---

type artStyleRequest struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Description string    `json:"description"`
}

type artStyleResponse struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Description string    `json:"description"`
}

func (h *ProjectHandler) GetArtStyle(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	id, ok := queryUUID(w, r, h.log, "projectId")
	if !ok {
		return
	}
	p, err := h.projects.GetForUser(r.Context(), id, user.UserID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if p.ArtStyle == nil {
		apierror.Write(w, h.log, apierror.NotFound("art style not set"))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, artStyleResponse{ProjectID: p.ID, Description: *p.ArtStyle})
}

// CreateArtStyle sets the art style once; a second POST is a 409.
func (h *ProjectHandler) CreateArtStyle(w http.ResponseWriter, r *http.Request) {
	h.writeArtStyle(w, r, h.projects.CreateArtStyle)
}

// UpdateArtStyle replaces an existing art style; 404 when none is set.
func (h *ProjectHandler) UpdateArtStyle(w http.ResponseWriter, r *http.Request) {
	h.writeArtStyle(w, r, h.projects.UpdateArtStyle)
}

func (h *ProjectHandler) writeArtStyle(w http.ResponseWriter, r *http.Request,
	write func(ctx context.Context, id, userID uuid.UUID, style string) error) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req artStyleRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.ProjectID == uuid.Nil || req.Description == "" {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and description are required"))
		return
	}
	if err := write(r.Context(), req.ProjectID, user.UserID, req.Description); err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, artStyleResponse(req))
}
