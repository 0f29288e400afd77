package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
)

// memDB is an in-memory stand-in for the Postgres repositories.
type memDB struct {
	mu         sync.Mutex
	projects   map[uuid.UUID]*models.Project
	characters map[uuid.UUID]*models.Character
	scenes     map[uuid.UUID][]*models.GeneratedScene
	clock      time.Time
}

func newMemDB() *memDB {
	return &memDB{
		projects:   map[uuid.UUID]*models.Project{},
		characters: map[uuid.UUID]*models.Character{},
		scenes:     map[uuid.UUID][]*models.GeneratedScene{},
		clock:      time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

type memProjects struct{ db *memDB }

func (m memProjects) Create(_ context.Context, p *models.Project) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = models.ProjectStatusDraft
	}
	p.CreatedAt = m.db.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.db.projects[p.ID] = &cp
	return nil
}

func (m memProjects) GetForUser(_ context.Context, id, userID uuid.UUID) (*models.Project, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.projects[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m memProjects) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Project, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []*models.Project{}
	for _, p := range m.db.projects {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m memProjects) Update(_ context.Context, id, userID uuid.UUID, patch models.ProjectPatch) (*models.Project, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.projects[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Story != nil {
		p.Story = *patch.Story
	}
	if patch.ArtStyle != nil {
		p.ArtStyle = patch.ArtStyle
	}
	if patch.Steps != nil {
		p.Steps = *patch.Steps
	}
	p.UpdatedAt = m.db.tick()
	cp := *p
	return &cp, nil
}

func (m memProjects) Delete(_ context.Context, id, userID uuid.UUID) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.projects[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	var paths []string
	for cid, c := range m.db.characters {
		if c.ProjectID == id {
			if c.ImagePath != nil {
				paths = append(paths, *c.ImagePath)
			}
			delete(m.db.characters, cid)
		}
	}
	for _, s := range m.db.scenes[id] {
		if s.ImagePath != nil {
			paths = append(paths, *s.ImagePath)
		}
	}
	delete(m.db.scenes, id)
	delete(m.db.projects, id)
	return paths, nil
}

func (m memProjects) CreateArtStyle(_ context.Context, id, userID uuid.UUID, style string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.projects[id]
	if !ok || p.UserID != userID {
		return repository.ErrNotFound
	}
	if p.ArtStyle != nil {
		return repository.ErrConflict
	}
	p.ArtStyle = &style
	return nil
}

func (m memProjects) UpdateArtStyle(_ context.Context, id, userID uuid.UUID, style string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.projects[id]
	if !ok || p.UserID != userID || p.ArtStyle == nil {
		return repository.ErrNotFound
	}
	p.ArtStyle = &style
	return nil
}

func (m memProjects) Touch(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p, ok := m.db.projects[id]; ok {
		p.UpdatedAt = m.db.tick()
	}
	return nil
}

type memCharacters struct{ db *memDB }

func (m memCharacters) CreateIfAbsent(_ context.Context, c *models.Character) (*models.Character, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.characters {
		if existing.ProjectID == c.ProjectID && existing.Name == c.Name {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *c
	cp.ID = uuid.New()
	cp.CreatedAt = m.db.tick()
	m.db.characters[cp.ID] = &cp
	out := cp
	return &out, true, nil
}

func (m memCharacters) GetForUser(_ context.Context, id, userID uuid.UUID) (*models.Character, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.characters[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p, ok := m.db.projects[c.ProjectID]; !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memCharacters) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Character, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []*models.Character{}
	for _, c := range m.db.characters {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memCharacters) SetImagePath(_ context.Context, projectID, id uuid.UUID, path string) (*string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.characters[id]
	if !ok || c.ProjectID != projectID {
		return nil, repository.ErrNotFound
	}
	prev := c.ImagePath
	c.ImagePath = &path
	return prev, nil
}

type memScenes struct{ db *memDB }

func (m memScenes) ReplaceAll(_ context.Context, projectID uuid.UUID, drafts []models.SceneDraft) ([]*models.GeneratedScene, []string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var removed []string
	for _, s := range m.db.scenes[projectID] {
		if s.ImagePath != nil {
			removed = append(removed, *s.ImagePath)
		}
	}
	list := make([]*models.GeneratedScene, len(drafts))
	for i, d := range drafts {
		list[i] = &models.GeneratedScene{
			ID:               uuid.New(),
			ProjectID:        projectID,
			SceneNo:          i + 1,
			StoryText:        d.StoryText,
			SceneDescription: d.SceneDescription,
		}
	}
	m.db.scenes[projectID] = list
	return list, removed, nil
}

func (m memScenes) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.GeneratedScene, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []*models.GeneratedScene{}
	for _, s := range m.db.scenes[projectID] {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m memScenes) UpdateDescription(_ context.Context, projectID uuid.UUID, sceneNo int, description string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.scenes[projectID] {
		if s.SceneNo == sceneNo {
			s.SceneDescription = description
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m memScenes) Delete(_ context.Context, projectID uuid.UUID, sceneNo int) (*string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	list := m.db.scenes[projectID]
	for i, s := range list {
		if s.SceneNo != sceneNo {
			continue
		}
		for _, later := range list[i+1:] {
			later.SceneNo--
		}
		m.db.scenes[projectID] = append(list[:i], list[i+1:]...)
		return s.ImagePath, nil
	}
	return nil, repository.ErrNotFound
}
