package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/services"
)

// ImagePipeline is the image generation and editing service.
type ImagePipeline interface {
	GenerateSceneImage(ctx context.Context, userID uuid.UUID, req services.SceneImageRequest) (*services.ImageResult, error)
	GenerateCharacterImage(ctx context.Context, userID uuid.UUID, req services.CharacterImageRequest) (*services.ImageResult, error)
	EditSceneImage(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, instruction string, src services.SourceImage) (*services.ImageResult, error)
	AddSoundEffects(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, src services.SourceImage) (*services.ImageResult, error)
	RemoveBackground(ctx context.Context, userID uuid.UUID, req services.BackgroundRequest) (*services.ImageResult, error)
	SaveSceneImage(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, src services.SourceImage) (*services.ImageResult, error)
}

// ImageHandler serves the image endpoints. Credit reservation happens in
// middleware; handlers only need to fail with a >=400 status for a refund.
type ImageHandler struct {
	images ImagePipeline
	log    *slog.Logger
}

func NewImageHandler(images ImagePipeline, log *slog.Logger) *ImageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ImageHandler{images: images, log: log}
}

func (h *ImageHandler) respond(w http.ResponseWriter, res *services.ImageResult, err error) {
	if err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, res)
}

type characterImageRequest struct {
	ProjectID   uuid.UUID `json:"projectId"`
	CharacterID uuid.UUID `json:"characterId"`
	Description string    `json:"description"`
	ArtStyle    string    `json:"artStyle"`
}

// GenerateCharacterImage handles POST /api/generate-character-image.
func (h *ImageHandler) GenerateCharacterImage(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req characterImageRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.CharacterID == uuid.Nil {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and characterId are required"))
		return
	}
	res, err := h.images.GenerateCharacterImage(r.Context(), user.UserID, services.CharacterImageRequest{
		ProjectID:   req.ProjectID,
		CharacterID: req.CharacterID,
		Description: strings.TrimSpace(req.Description),
		ArtStyle:    strings.TrimSpace(req.ArtStyle),
	})
	h.respond(w, res, err)
}

type sceneImageRequest struct {
	ProjectID    uuid.UUID   `json:"projectId"`
	SceneNo      int         `json:"sceneNo"`
	Description  string      `json:"description"`
	StoryText    string      `json:"storyText"`
	ArtStyle     string      `json:"artStyle"`
	CharacterIDs []uuid.UUID `json:"characterIds"`
	WithEffects  *bool       `json:"withEffects"` // nil means true
}

// GenerateSceneImage handles POST /api/generate-scene-image.
func (h *ImageHandler) GenerateSceneImage(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req sceneImageRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and sceneNo are required"))
		return
	}
	res, err := h.images.GenerateSceneImage(r.Context(), user.UserID, services.SceneImageRequest{
		ProjectID:    req.ProjectID,
		SceneNo:      req.SceneNo,
		Description:  strings.TrimSpace(req.Description),
		StoryText:    strings.TrimSpace(req.StoryText),
		ArtStyle:     strings.TrimSpace(req.ArtStyle),
		CharacterIDs: req.CharacterIDs,
		WithEffects:  req.WithEffects == nil || *req.WithEffects,
	})
	h.respond(w, res, err)
}

type editSceneRequest struct {
	ProjectID    uuid.UUID `json:"projectId"`
	SceneNo      int       `json:"sceneNo"`
	ImageDataURL string    `json:"imageDataUrl"`
	Instruction  string    `json:"instruction"`
}

// EditSceneImage handles POST /api/edit-scene-image.
func (h *ImageHandler) EditSceneImage(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req editSceneRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	req.Instruction = strings.TrimSpace(req.Instruction)
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 || req.Instruction == "" {
		apierror.Write(w, h.log, apierror.BadRequest("projectId, sceneNo and instruction are required"))
		return
	}
	src, err := decodeImage(req.ImageDataURL)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	res, err := h.images.EditSceneImage(r.Context(), user.UserID, req.ProjectID, req.SceneNo, req.Instruction, src)
	h.respond(w, res, err)
}

type soundEffectsRequest struct {
	ProjectID    uuid.UUID `json:"projectId"`
	SceneNo      int       `json:"sceneNo"`
	ImageDataURL string    `json:"imageDataUrl"`
}

// AddSoundEffects handles POST /api/add-sound-effects.
func (h *ImageHandler) AddSoundEffects(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req soundEffectsRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 {
		apierror.Write(w, h.log, apierror.BadRequest("projectId and sceneNo are required"))
		return
	}
	src, err := decodeImage(req.ImageDataURL)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	res, err := h.images.AddSoundEffects(r.Context(), user.UserID, req.ProjectID, req.SceneNo, src)
	h.respond(w, res, err)
}

type removeBackgroundRequest struct {
	ProjectID    uuid.UUID  `json:"projectId"`
	CharacterID  *uuid.UUID `json:"characterId"`
	SceneNo      int        `json:"sceneNo"`
	ImageDataURL string     `json:"imageDataUrl"`
}

// RemoveBackground handles POST /api/remove-background.
func (h *ImageHandler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req removeBackgroundRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil {
		apierror.Write(w, h.log, apierror.BadRequest("projectId is required"))
		return
	}
	if req.CharacterID == nil && req.SceneNo < 1 && req.ImageDataURL == "" {
		apierror.Write(w, h.log, apierror.BadRequest("imageDataUrl is required"))
		return
	}
	src, err := decodeImage(req.ImageDataURL)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	res, err := h.images.RemoveBackground(r.Context(), user.UserID, services.BackgroundRequest{
		ProjectID:   req.ProjectID,
		CharacterID: req.CharacterID,
		SceneNo:     req.SceneNo,
		Image:       src,
	})
	h.respond(w, res, err)
}

type saveSceneImageRequest struct {
	ProjectID    uuid.UUID `json:"projectId"`
	SceneNo      int       `json:"sceneNo"`
	ImageDataURL string    `json:"imageDataUrl"`
}

// SaveSceneImage handles POST /api/save-scene-image. No model is called and
// no credit is charged.
func (h *ImageHandler) SaveSceneImage(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	var req saveSceneImageRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.SceneNo < 1 || req.ImageDataURL == "" {
		apierror.Write(w, h.log, apierror.BadRequest("projectId, sceneNo and imageDataUrl are required"))
		return
	}
	src, err := decodeImage(req.ImageDataURL)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	res, err := h.images.SaveSceneImage(r.Context(), user.UserID, req.ProjectID, req.SceneNo, src)
	h.respond(w, res, err)
}
