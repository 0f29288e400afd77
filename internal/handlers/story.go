package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/services"
)

// Storyboarder is the LLM-backed story pipeline.
type Storyboarder interface {
	Analyze(ctx context.Context, story, artStyle string) ([]services.CharacterDraft, error)
	Split(ctx context.Context, story, artStyle string, targetScenes int) (*services.SceneSet, error)
	Insert(ctx context.Context, scenes map[string]models.SceneDraft, after int, story string) (*services.SceneSet, error)
}

// StoryHandler serves the story analysis endpoints.
type StoryHandler struct {
	board Storyboarder
	log   *slog.Logger
}

func NewStoryHandler(board Storyboarder, log *slog.Logger) *StoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StoryHandler{board: board, log: log}
}

type analyzeRequest struct {
	Story    string `json:"story"`
	ArtStyle string `json:"artStyle"`
}

type analyzeResponse struct {
	Characters []services.CharacterDraft `json:"characters"`
}

// Analyze handles POST /api/analyze-story.
func (h *StoryHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r, h.log) == nil {
		return
	}
	var req analyzeRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	chars, err := h.board.Analyze(r.Context(), req.Story, req.ArtStyle)
	if err != nil {
		failUpstream(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, analyzeResponse{Characters: chars})
}

type generateScenesRequest struct {
	Story        string `json:"story"`
	ArtStyle     string `json:"artStyle"`
	TargetScenes int    `json:"targetScenes"`
}

// GenerateScenes handles POST /api/generate-scenes.
func (h *StoryHandler) GenerateScenes(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r, h.log) == nil {
		return
	}
	var req generateScenesRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.TargetScenes < 0 {
		apierror.Write(w, h.log, apierror.BadRequest("targetScenes must not be negative"))
		return
	}
	set, err := h.board.Split(r.Context(), req.Story, req.ArtStyle, req.TargetScenes)
	if err != nil {
		failUpstream(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, set)
}

type insertSceneRequest struct {
	Scenes           map[string]models.SceneDraft `json:"scenes"`
	InsertAfterIndex *int                         `json:"insertAfterIndex"`
	Story            string                       `json:"story"`
}

// InsertScene handles POST /api/insert-scene and returns the renumbered
// storyboard.
func (h *StoryHandler) InsertScene(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r, h.log) == nil {
		return
	}
	var req insertSceneRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if req.InsertAfterIndex == nil {
		apierror.Write(w, h.log, apierror.BadRequest("insertAfterIndex is required"))
		return
	}
	set, err := h.board.Insert(r.Context(), req.Scenes, *req.InsertAfterIndex, req.Story)
	if err != nil {
		failUpstream(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, set)
}
