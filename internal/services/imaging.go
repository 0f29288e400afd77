package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/imagegen"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
	"github.com/toonsmith/backend/internal/storage"
)

// ErrNoSourceImage is returned when an edit has neither an uploaded image
// nor a stored render to start from.
var ErrNoSourceImage = errors.New("no image to edit")

type ProjectReader interface {
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type SceneImageStore interface {
	Get(ctx context.Context, projectID uuid.UUID, sceneNo int) (*models.GeneratedScene, error)
	UpsertImage(ctx context.Context, projectID uuid.UUID, sceneNo int, path string) (*string, error)
}

type CharacterImageStore interface {
	Get(ctx context.Context, projectID, id uuid.UUID) (*models.Character, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error)
	SetImagePath(ctx context.Context, projectID, id uuid.UUID, path string) (*string, error)
}

// CleanupQueue schedules deletion of superseded storage objects.
type CleanupQueue interface {
	EnqueueCleanup(ctx context.Context, keys ...string) error
}

// ImageResult is what every image operation hands back to the client.
type ImageResult struct {
	Path           string `json:"path,omitempty"`
	URL            string `json:"imageUrl,omitempty"`
	DataURL        string `json:"imageDataUrl,omitempty"`
	EffectsApplied bool   `json:"effectsApplied"`
}

type SceneImageRequest struct {
	ProjectID    uuid.UUID
	SceneNo      int
	Description  string
	StoryText    string
	ArtStyle     string
	CharacterIDs []uuid.UUID
	WithEffects  bool
}

type CharacterImageRequest struct {
	ProjectID   uuid.UUID
	CharacterID uuid.UUID
	Description string
	ArtStyle    string
}

// SourceImage is an uploaded image; an empty one means "use the stored render".
type SourceImage struct {
	Data     []byte
	MIMEType string
}

type BackgroundRequest struct {
	ProjectID   uuid.UUID
	CharacterID *uuid.UUID
	SceneNo     int
	Image       SourceImage
}

// Imaging runs the image pipeline: compose prompt, pick references,
// generate, store, record, and clean up what the new image replaced.
type Imaging struct {
	projects   ProjectReader
	scenes     SceneImageStore
	characters CharacterImageStore
	store      storage.Store
	refs       *ReferencePicker
	generator  imagegen.Generator // retried; used for fresh renders
	editor     imagegen.Generator // single call; used for edits
	cleanup    CleanupQueue
	log        *slog.Logger
	now        func() time.Time
}

type ImagingDeps struct {
	Projects   ProjectReader
	Scenes     SceneImageStore
	Characters CharacterImageStore
	Store      storage.Store
	References *ReferencePicker
	Generator  imagegen.Generator
	Editor     imagegen.Generator
	Cleanup    CleanupQueue
	Log        *slog.Logger
}

func NewImaging(d ImagingDeps) *Imaging {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Editor == nil {
		d.Editor = d.Generator
	}
	return &Imaging{
		projects:   d.Projects,
		scenes:     d.Scenes,
		characters: d.Characters,
		store:      d.Store,
		refs:       d.References,
		generator:  d.Generator,
		editor:     d.Editor,
		cleanup:    d.Cleanup,
		log:        d.Log,
		now:        time.Now,
	}
}

// GenerateSceneImage renders a scene panel. With WithEffects the render is
// passed through a sound-effects edit; if that edit fails the plain render
// is kept and EffectsApplied is false.
func (m *Imaging) GenerateSceneImage(ctx context.Context, userID uuid.UUID, req SceneImageRequest) (*ImageResult, error) {
	project, err := m.projects.GetForUser(ctx, req.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	scene, err := m.scenes.Get(ctx, req.ProjectID, req.SceneNo)
	if err != nil {
		return nil, err
	}
	description := firstNonEmpty(req.Description, scene.SceneDescription)
	storyText := firstNonEmpty(req.StoryText, scene.StoryText)
	artStyle := firstNonEmpty(req.ArtStyle, deref(project.ArtStyle))

	characters := m.sceneCharacters(ctx, req.ProjectID, req.CharacterIDs)
	img, err := m.generator.Generate(ctx, imagegen.Request{
		Prompt:     scenePrompt(description, storyText, artStyle, characters),
		References: m.refs.Pick(ctx, characters),
	})
	if err != nil {
		return nil, err
	}

	effects := false
	if req.WithEffects {
		edited, err := m.editor.Generate(ctx, imagegen.Request{
			Prompt:     soundEffectsPrompt(storyText),
			References: []imagegen.Reference{{Data: img.Data, MIMEType: img.MIMEType}},
		})
		if err != nil {
			m.log.Warn("sound effects step failed, keeping base image",
				"project_id", req.ProjectID, "scene_no", req.SceneNo, "error", err)
		} else {
			img, effects = edited, true
		}
	}

	res, err := m.saveScene(ctx, req.ProjectID, req.SceneNo, img.Data, img.MIMEType)
	if err != nil {
		return nil, err
	}
	res.EffectsApplied = effects
	return res, nil
}

// GenerateCharacterImage renders a character reference sheet and makes it
// the character's image.
func (m *Imaging) GenerateCharacterImage(ctx context.Context, userID uuid.UUID, req CharacterImageRequest) (*ImageResult, error) {
	project, err := m.projects.GetForUser(ctx, req.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	ch, err := m.characters.Get(ctx, req.ProjectID, req.CharacterID)
	if err != nil {
		return nil, err
	}
	img, err := m.generator.Generate(ctx, imagegen.Request{
		Prompt: characterPrompt(ch.Name,
			firstNonEmpty(req.Description, ch.Description),
			firstNonEmpty(req.ArtStyle, ch.ArtStyle, deref(project.ArtStyle))),
	})
	if err != nil {
		return nil, err
	}
	return m.saveCharacter(ctx, req.ProjectID, ch.ID, img.Data, img.MIMEType)
}

// EditSceneImage applies an instruction to the uploaded image or, when none
// is given, to the scene's current render.
func (m *Imaging) EditSceneImage(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, instruction string, src SourceImage) (*ImageResult, error) {
	return m.editScene(ctx, userID, projectID, sceneNo, editPrompt(instruction), src)
}

// AddSoundEffects overlays sound-effect lettering on a scene image.
func (m *Imaging) AddSoundEffects(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, src SourceImage) (*ImageResult, error) {
	res, err := m.editScene(ctx, userID, projectID, sceneNo, soundEffectsPrompt(""), src)
	if err != nil {
		return nil, err
	}
	res.EffectsApplied = true
	return res, nil
}

func (m *Imaging) editScene(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, prompt string, src SourceImage) (*ImageResult, error) {
	if _, err := m.projects.GetForUser(ctx, projectID, userID); err != nil {
		return nil, err
	}
	scene, err := m.scenes.Get(ctx, projectID, sceneNo)
	if err != nil {
		return nil, err
	}
	if len(src.Data) == 0 {
		if src, err = m.loadStored(ctx, scene.ImagePath); err != nil {
			return nil, err
		}
	}
	img, err := m.editor.Generate(ctx, imagegen.Request{
		Prompt:     prompt,
		References: []imagegen.Reference{{Data: src.Data, MIMEType: src.MIMEType}},
	})
	if err != nil {
		return nil, err
	}
	return m.saveScene(ctx, projectID, sceneNo, img.Data, img.MIMEType)
}

// RemoveBackground cuts the subject out of an image. The result replaces
// the character's image when CharacterID is set, the scene render when
// SceneNo is set, and is only returned inline otherwise.
func (m *Imaging) RemoveBackground(ctx context.Context, userID uuid.UUID, req BackgroundRequest) (*ImageResult, error) {
	if _, err := m.projects.GetForUser(ctx, req.ProjectID, userID); err != nil {
		return nil, err
	}
	src := req.Image
	if req.CharacterID != nil {
		ch, err := m.characters.Get(ctx, req.ProjectID, *req.CharacterID)
		if err != nil {
			return nil, err
		}
		if len(src.Data) == 0 {
			if src, err = m.loadStored(ctx, ch.ImagePath); err != nil {
				return nil, err
			}
		}
	} else if req.SceneNo > 0 {
		scene, err := m.scenes.Get(ctx, req.ProjectID, req.SceneNo)
		if err != nil {
			return nil, err
		}
		if len(src.Data) == 0 {
			if src, err = m.loadStored(ctx, scene.ImagePath); err != nil {
				return nil, err
			}
		}
	}
	if len(src.Data) == 0 {
		return nil, ErrNoSourceImage
	}

	img, err := m.editor.Generate(ctx, imagegen.Request{
		Prompt:     removeBackgroundPrompt,
		References: []imagegen.Reference{{Data: src.Data, MIMEType: src.MIMEType}},
	})
	if err != nil {
		return nil, err
	}
	switch {
	case req.CharacterID != nil:
		return m.saveCharacter(ctx, req.ProjectID, *req.CharacterID, img.Data, img.MIMEType)
	case req.SceneNo > 0:
		return m.saveScene(ctx, req.ProjectID, req.SceneNo, img.Data, img.MIMEType)
	default:
		return &ImageResult{DataURL: dataURL(img.Data, img.MIMEType)}, nil
	}
}

// SaveSceneImage stores a client-edited image as the scene's render.
func (m *Imaging) SaveSceneImage(ctx context.Context, userID, projectID uuid.UUID, sceneNo int, src SourceImage) (*ImageResult, error) {
	if len(src.Data) == 0 {
		return nil, ErrNoSourceImage
	}
	if _, err := m.projects.GetForUser(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if _, err := m.scenes.Get(ctx, projectID, sceneNo); err != nil {
		return nil, err
	}
	return m.saveScene(ctx, projectID, sceneNo, src.Data, src.MIMEType)
}

func (m *Imaging) saveScene(ctx context.Context, projectID uuid.UUID, sceneNo int, data []byte, mimeType string) (*ImageResult, error) {
	key := storage.SceneKey(projectID, sceneNo, m.now())
	if err := m.store.Put(ctx, key, data, mimeType); err != nil {
		return nil, fmt.Errorf("store scene image: %w", err)
	}
	prev, err := m.scenes.UpsertImage(ctx, projectID, sceneNo, key)
	if err != nil {
		m.enqueueCleanup(ctx, key)
		return nil, fmt.Errorf("record scene image: %w", err)
	}
	if prev != nil && *prev != key {
		m.enqueueCleanup(ctx, *prev)
	}
	m.touch(ctx, projectID)
	return &ImageResult{Path: key, URL: m.store.PublicURL(key)}, nil
}

func (m *Imaging) saveCharacter(ctx context.Context, projectID, characterID uuid.UUID, data []byte, mimeType string) (*ImageResult, error) {
	key := storage.CharacterKey(projectID, characterID, m.now())
	if err := m.store.Put(ctx, key, data, mimeType); err != nil {
		return nil, fmt.Errorf("store character image: %w", err)
	}
	prev, err := m.characters.SetImagePath(ctx, projectID, characterID, key)
	if err != nil {
		m.enqueueCleanup(ctx, key)
		return nil, fmt.Errorf("record character image: %w", err)
	}
	if prev != nil && *prev != key {
		m.enqueueCleanup(ctx, *prev)
	}
	m.touch(ctx, projectID)
	return &ImageResult{Path: key, URL: m.store.PublicURL(key)}, nil
}

func (m *Imaging) loadStored(ctx context.Context, path *string) (SourceImage, error) {
	if path == nil || *path == "" {
		return SourceImage{}, ErrNoSourceImage
	}
	data, err := m.store.Get(ctx, *path)
	if errors.Is(err, storage.ErrNotFound) {
		return SourceImage{}, ErrNoSourceImage
	}
	if err != nil {
		return SourceImage{}, fmt.Errorf("load stored image: %w", err)
	}
	return SourceImage{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
}

// sceneCharacters resolves the requested characters, or every character of
// the project when none were requested. Unknown ids are skipped.
func (m *Imaging) sceneCharacters(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID) []*models.Character {
	if len(ids) == 0 {
		all, err := m.characters.ListByProject(ctx, projectID)
		if err != nil {
			m.log.Warn("list characters for references", "project_id", projectID, "error", err)
			return nil
		}
		return all
	}
	out := make([]*models.Character, 0, len(ids))
	for _, id := range ids {
		c, err := m.characters.Get(ctx, projectID, id)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				m.log.Warn("load character for references", "character_id", id, "error", err)
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *Imaging) enqueueCleanup(ctx context.Context, keys ...string) {
	if m.cleanup == nil {
		return
	}
	if err := m.cleanup.EnqueueCleanup(context.WithoutCancel(ctx), keys...); err != nil {
		m.log.Warn("enqueue storage cleanup", "keys", keys, "error", err)
	}
}

func (m *Imaging) touch(ctx context.Context, projectID uuid.UUID) {
	if err := m.projects.Touch(context.WithoutCancel(ctx), projectID); err != nil {
		m.log.Warn("touch project", "project_id", projectID, "error", err)
	}
}

// --- prompts ---

const removeBackgroundPrompt = "Remove the background from this image. Keep the subject exactly as it is " +
	"and place it on a plain, fully transparent or pure white background. Do not add anything."

func scenePrompt(description, storyText, artStyle string, characters []*models.Character) string {
	var b strings.Builder
	b.WriteString("Draw a single vertical webtoon panel.\n")
	if artStyle != "" {
		fmt.Fprintf(&b, "Art style: %s\n", artStyle)
	}
	fmt.Fprintf(&b, "Scene: %s\n", description)
	if storyText != "" {
		fmt.Fprintf(&b, "Story context: %s\n", storyText)
	}
	if len(characters) > 0 {
		b.WriteString("Characters (match the attached reference images where provided):\n")
		for _, c := range characters {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	}
	b.WriteString("Do not draw speech bubbles or captions.")
	return b.String()
}

func characterPrompt(name, description, artStyle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Character reference sheet of %s, full body, front view, neutral pose, plain background.\n", name)
	fmt.Fprintf(&b, "Appearance: %s\n", description)
	if artStyle != "" {
		fmt.Fprintf(&b, "Art style: %s\n", artStyle)
	}
	return b.String()
}

func editPrompt(instruction string) string {
	return "Edit this webtoon panel. Keep the composition, characters and art style unchanged except for: " + instruction
}

func soundEffectsPrompt(storyText string) string {
	p := "Add bold, stylized comic sound-effect lettering (onomatopoeia) that fits the action in this panel. " +
		"Keep the artwork underneath unchanged."
	if storyText != "" {
		p += " The moment shown: " + storyText
	}
	return p
}

func dataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
