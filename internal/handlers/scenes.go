package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/services"
)

type SceneStore interface {
	ReplaceAll(ctx context.Context, projectID uuid.UUID, drafts []models.SceneDraft) ([]*models.GeneratedScene, []string, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.GeneratedScene, error)
	UpdateDescription(ctx context.Context, projectID uuid.UUID, sceneNo int, description string) error
	Delete(ctx context.Context, projectID uuid.UUID, sceneNo int) (*string, error)
}

// SceneHandler serves /api/generated-scenes and /api/delete-scene.
type SceneHandler struct {
	projects ProjectStore
	scenes   SceneStore
	urls     URLResolver
	cleanup  services.CleanupQueue
	log      *slog.Logger
}

func NewSceneHandler(projects ProjectStore, scenes SceneStore, urls URLResolver, cleanup services.CleanupQueue, log *slog.Logger) *SceneHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SceneHandler{projects: projects, scenes: scenes, urls: urls, cleanup: cleanup, log: log}
}

func (h *SceneHandler) withURLs(list []*models.GeneratedScene) []*models.GeneratedScene {
	for _, s := range list {
		if s.ImagePath != nil && *s.ImagePath != "" {
			s.ImageURL = h.urls.PublicURL(*s.ImagePath)
		}
	}
	return list
}

func (h *SceneHandler) owned(w http.ResponseWriter, r *http.Request, projectID, userID uuid.UUID) bool {
	if _, err := h.projects.GetForUser(r.Context(), projectID, userID); err != nil {
		fail(w, h.log, err)
		return false
	}
	return true
}

func (h *SceneHandler) enqueueCleanup(ctx context.Context, projectID uuid.UUID, keys ...string) {
	if len(keys) == 0 || h.cleanup == nil {
		return
	}
	if err := h.cleanup.EnqueueCleanup(context.WithoutCancel(ctx), keys...); err != nil {
		h.log.Warn("enqueue scene image cleanup", "project_id", projectID, "error", err)
	}
}

// List handles GET /api/generated-scenes?projectId=, in scene order.
func (h *SceneHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	projectID, ok := queryUUID(w, r, h.log, "projectId")
	if !ok || !h.owned(w, r, projectID, user.UserID) {
		return
	}
	list, err := h.scenes.ListByProject(r.Context(), projectID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, h.withURLs(list))
}

type saveScenesRequest struct {
	ProjectID uuid.UUID       `json:"projectId"`
	Scenes    json.RawMessage `json:"scenes"`
}

// parseDrafts accepts either the {"1": {...}} map produced by scene
// generation or a plain array.
func parseDrafts(raw json.RawMessage) ([]models.SceneDraft, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []models.SceneDraft
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var m map[string]models.SceneDraft
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return services.OrderedDrafts(m)
}

// Save handles POST /api/generated-scenes: the project's scenes are
// replaced by the posted storyboard, numbered from 1.
func (h *SceneHandler) Save(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req saveScenesRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || len(req.Scenes) == 0 {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and scenes are required"))
		return
	}
	drafts, err := parseDrafts(req.Scenes)
	if err != nil {
		if classify(err) == nil {
			apierror.Write(w, h.log, apierror.BadRequest("invalid scenes").WithDetails(err.Error()))
			return
		}
		fail(w, h.log, err)
		return
	}
	if !h.owned(w, r, req.ProjectID, user.UserID) {
		return
	}
	saved, removed, err := h.scenes.ReplaceAll(r.Context(), req.ProjectID, drafts)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	h.enqueueCleanup(r.Context(), req.ProjectID, removed...)
	if err := h.projects.Touch(r.Context(), req.ProjectID); err != nil {
		h.log.Warn("touch project", "project_id", req.ProjectID, "error", err)
	}
	apierror.WriteJSON(w, http.StatusOK, h.withURLs(saved))
}

type updateSceneRequest struct {
	ProjectID   uuid.UUID `json:"projectId"`
	SceneNo     int       `json:"sceneNo"`
	Description string    `json:"description"`
}

// Update handles PATCH /api/generated-scenes.
func (h *SceneHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req updateSceneRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 || req.Description == "" {
		apierror.Write(w, h.log, apierror.BadRequest("projectId, sceneNo and description are required"))
		return
	}
	if !h.owned(w, r, req.ProjectID, user.UserID) {
		return
	}
	if err := h.scenes.UpdateDescription(r.Context(), req.ProjectID, req.SceneNo, req.Description); err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, req)
}

type deleteSceneRequest struct {
	ProjectID uuid.UUID `json:"projectId"`
	SceneNo   int       `json:"sceneNo"`
}

// Delete handles POST /api/delete-scene. Later scenes move down by one.
func (h *SceneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req deleteSceneRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and sceneNo are required"))
		return
	}
	if !h.owned(w, r, req.ProjectID, user.UserID) {
		return
	}
	removed, err := h.scenes.Delete(r.Context(), req.ProjectID, req.SceneNo)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	if removed != nil {
		h.enqueueCleanup(r.Context(), req.ProjectID, *removed)
	}
	if err := h.projects.Touch(r.Context(), req.ProjectID); err != nil {
		h.log.Warn("touch project", "project_id", req.ProjectID, "error", err)
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true, "sceneNo": req.SceneNo})
}
