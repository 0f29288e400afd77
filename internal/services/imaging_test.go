package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/imagegen"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
	"github.com/toonsmith/backend/internal/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProjects struct {
	owner   uuid.UUID
	project *models.Project
	touched int
}

func (f *fakeProjects) GetForUser(_ context.Context, id, userID uuid.UUID) (*models.Project, error) {
	if f.project == nil || f.project.ID != id || userID != f.owner {
		return nil, repository.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeProjects) Touch(context.Context, uuid.UUID) error {
	f.touched++
	return nil
}

type fakeScenes struct {
	scenes map[int]*models.GeneratedScene
}

func (f *fakeScenes) Get(_ context.Context, _ uuid.UUID, sceneNo int) (*models.GeneratedScene, error) {
	s, ok := f.scenes[sceneNo]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeScenes) UpsertImage(_ context.Context, _ uuid.UUID, sceneNo int, path string) (*string, error) {
	s := f.scenes[sceneNo]
	prev := s.ImagePath
	p := path
	s.ImagePath = &p
	return prev, nil
}

type fakeCharacters struct {
	chars map[uuid.UUID]*models.Character
}

func (f *fakeCharacters) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*models.Character, error) {
	c, ok := f.chars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCharacters) ListByProject(context.Context, uuid.UUID) ([]*models.Character, error) {
	var out []*models.Character
	for _, c := range f.chars {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCharacters) SetImagePath(_ context.Context, _ uuid.UUID, id uuid.UUID, path string) (*string, error) {
	c := f.chars[id]
	prev := c.ImagePath
	p := path
	c.ImagePath = &p
	return prev, nil
}

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	d, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) PublicURL(key string) string { return "https://cdn.test/" + key }

type recordingCleanup struct{ keys []string }

func (r *recordingCleanup) EnqueueCleanup(_ context.Context, keys ...string) error {
	r.keys = append(r.keys, keys...)
	return nil
}

// fakeGenerator returns out (or err) and records requests.
type fakeGenerator struct {
	out  []byte
	err  error
	reqs []imagegen.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req imagegen.Request) (*imagegen.Image, error) {
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return &imagegen.Image{Data: g.out, MIMEType: "image/png"}, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type imagingFixture struct {
	userID    uuid.UUID
	projectID uuid.UUID
	projects  *fakeProjects
	scenes    *fakeScenes
	chars     *fakeCharacters
	store     *memStore
	cleanup   *recordingCleanup
	gen       *fakeGenerator
	editor    *fakeGenerator
	imaging   *Imaging
}

func newImagingFixture(t *testing.T) *imagingFixture {
	t.Helper()
	f := &imagingFixture{userID: uuid.New(), projectID: uuid.New()}
	style := "watercolor"
	f.projects = &fakeProjects{owner: f.userID, project: &models.Project{ID: f.projectID, ArtStyle: &style}}
	f.scenes = &fakeScenes{scenes: map[int]*models.GeneratedScene{
		1: {ProjectID: f.projectID, SceneNo: 1, StoryText: "Mira jumps.", SceneDescription: "rooftop leap"},
	}}
	f.chars = &fakeCharacters{chars: map[uuid.UUID]*models.Character{}}
	f.store = &memStore{objects: map[string][]byte{}}
	f.cleanup = &recordingCleanup{}
	f.gen = &fakeGenerator{out: []byte("base")}
	f.editor = &fakeGenerator{out: []byte("edited")}
	f.imaging = NewImaging(ImagingDeps{
		Projects:   f.projects,
		Scenes:     f.scenes,
		Characters: f.chars,
		Store:      f.store,
		References: NewReferencePicker(f.store, 1<<20, MaxCharacters, 80, nil),
		Generator:  f.gen,
		Editor:     f.editor,
		Cleanup:    f.cleanup,
	})
	clock := time.Unix(1700000000, 0)
	f.imaging.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGenerateSceneImage_StoresAndSupersedes(t *testing.T) {
	f := newImagingFixture(t)
	old := "projects/old.png"
	f.scenes.scenes[1].ImagePath = &old

	res, err := f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{ProjectID: f.projectID, SceneNo: 1})
	if err != nil {
		t.Fatalf("GenerateSceneImage: %v", err)
	}
	if !strings.HasPrefix(res.Path, "projects/"+f.projectID.String()+"/scenes/1-") {
		t.Errorf("unexpected path %s", res.Path)
	}
	if string(f.store.objects[res.Path]) != "base" {
		t.Error("base image should be stored")
	}
	if res.URL != "https://cdn.test/"+res.Path || res.EffectsApplied {
		t.Errorf("unexpected result %+v", res)
	}
	if len(f.cleanup.keys) != 1 || f.cleanup.keys[0] != old {
		t.Errorf("superseded object should be queued for cleanup, got %v", f.cleanup.keys)
	}
	prompt := f.gen.reqs[0].Prompt
	if !strings.Contains(prompt, "rooftop leap") || !strings.Contains(prompt, "watercolor") {
		t.Errorf("prompt should fall back to stored description and project style: %q", prompt)
	}
	if f.projects.touched != 1 {
		t.Error("project should be touched")
	}
}

func TestGenerateSceneImage_EffectsBestEffort(t *testing.T) {
	f := newImagingFixture(t)
	f.editor.err = errors.New("effects model down")

	res, err := f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{ProjectID: f.projectID, SceneNo: 1, WithEffects: true})
	if err != nil {
		t.Fatalf("effects failure must not fail the request: %v", err)
	}
	if res.EffectsApplied || string(f.store.objects[res.Path]) != "base" {
		t.Errorf("base image should be kept, got %+v", res)
	}

	f.editor.err = nil
	res, err = f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{ProjectID: f.projectID, SceneNo: 1, WithEffects: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.EffectsApplied || string(f.store.objects[res.Path]) != "edited" {
		t.Errorf("effects image should be stored, got %+v", res)
	}
}

func TestGenerateSceneImage_Errors(t *testing.T) {
	f := newImagingFixture(t)

	if _, err := f.imaging.GenerateSceneImage(context.Background(), uuid.New(), SceneImageRequest{ProjectID: f.projectID, SceneNo: 1}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("foreign project: expected ErrNotFound, got %v", err)
	}
	if _, err := f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{ProjectID: f.projectID, SceneNo: 9}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing scene: expected ErrNotFound, got %v", err)
	}

	f.gen.err = &imagegen.UpstreamError{Status: 429, Err: errors.New("quota")}
	_, err := f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{ProjectID: f.projectID, SceneNo: 1})
	if imagegen.StatusOf(err) != 429 {
		t.Errorf("expected upstream 429 to propagate, got %v", err)
	}
	if len(f.store.objects) != 0 {
		t.Error("nothing should be stored on failure")
	}
}

func TestGenerateSceneImage_UsesCharacterReferences(t *testing.T) {
	f := newImagingFixture(t)
	withImage := uuid.New()
	path := "projects/x/characters/mira.png"
	f.store.objects[path] = pngBytes(t)
	f.chars.chars[withImage] = &models.Character{ID: withImage, Name: "Mira", Description: "red scarf", ImagePath: &path}
	noImage := uuid.New()
	f.chars.chars[noImage] = &models.Character{ID: noImage, Name: "Jun", Description: "glasses"}

	_, err := f.imaging.GenerateSceneImage(context.Background(), f.userID, SceneImageRequest{
		ProjectID: f.projectID, SceneNo: 1, CharacterIDs: []uuid.UUID{withImage, noImage, uuid.New()},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := f.gen.reqs[0]
	if len(req.References) != 1 || req.References[0].MIMEType != "image/jpeg" {
		t.Errorf("expected one JPEG reference, got %+v", req.References)
	}
	if !strings.Contains(req.Prompt, "Mira: red scarf") || !strings.Contains(req.Prompt, "Jun: glasses") {
		t.Errorf("prompt should list characters: %q", req.Prompt)
	}
}

func TestGenerateCharacterImage(t *testing.T) {
	f := newImagingFixture(t)
	id := uuid.New()
	f.chars.chars[id] = &models.Character{ID: id, Name: "Mira", Description: "red scarf"}

	res, err := f.imaging.GenerateCharacterImage(context.Background(), f.userID, CharacterImageRequest{ProjectID: f.projectID, CharacterID: id})
	if err != nil {
		t.Fatal(err)
	}
	if f.chars.chars[id].ImagePath == nil || *f.chars.chars[id].ImagePath != res.Path {
		t.Error("character image path should be updated")
	}
	if _, err := f.imaging.GenerateCharacterImage(context.Background(), f.userID, CharacterImageRequest{ProjectID: f.projectID, CharacterID: uuid.New()}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown character: expected ErrNotFound, got %v", err)
	}
}

func TestEditSceneImage_UsesStoredRender(t *testing.T) {
	f := newImagingFixture(t)
	stored := "projects/p/scenes/1-1.png"
	f.store.objects[stored] = pngBytes(t)
	f.scenes.scenes[1].ImagePath = &stored

	res, err := f.imaging.EditSceneImage(context.Background(), f.userID, f.projectID, 1, "make it night", SourceImage{})
	if err != nil {
		t.Fatal(err)
	}
	if string(f.store.objects[res.Path]) != "edited" {
		t.Error("edited image should be stored")
	}
	if !strings.Contains(f.editor.reqs[0].Prompt, "make it night") || len(f.editor.reqs[0].References) != 1 {
		t.Errorf("unexpected edit request %+v", f.editor.reqs[0])
	}
	if len(f.gen.reqs) != 0 {
		t.Error("edits must not go through the retrying generator")
	}
}

func TestEditSceneImage_NoSource(t *testing.T) {
	f := newImagingFixture(t)
	_, err := f.imaging.EditSceneImage(context.Background(), f.userID, f.projectID, 1, "x", SourceImage{})
	if !errors.Is(err, ErrNoSourceImage) {
		t.Fatalf("expected ErrNoSourceImage, got %v", err)
	}
}

func TestRemoveBackground_InlineResult(t *testing.T) {
	f := newImagingFixture(t)
	res, err := f.imaging.RemoveBackground(context.Background(), f.userID, BackgroundRequest{
		ProjectID: f.projectID,
		Image:     SourceImage{Data: pngBytes(t), MIMEType: "image/png"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" || !strings.HasPrefix(res.DataURL, "data:image/png;base64,") {
		t.Errorf("expected inline data url only, got %+v", res)
	}
}

func TestSaveSceneImage(t *testing.T) {
	f := newImagingFixture(t)
	res, err := f.imaging.SaveSceneImage(context.Background(), f.userID, f.projectID, 1, SourceImage{Data: []byte("manual"), MIMEType: "image/png"})
	if err != nil {
		t.Fatal(err)
	}
	if string(f.store.objects[res.Path]) != "manual" || *f.scenes.scenes[1].ImagePath != res.Path {
		t.Error("manual image should be stored and recorded")
	}
	if len(f.gen.reqs)+len(f.editor.reqs) != 0 {
		t.Error("saving must not call the image model")
	}
}
