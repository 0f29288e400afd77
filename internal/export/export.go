// Package export packages a project's story and renders into a ZIP archive.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/toonsmith/backend/internal/models"
)

type ProjectReader interface {
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error)
}

type SceneLister interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.GeneratedScene, error)
}

type CharacterLister interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error)
}

type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Exporter assembles project archives.
type Exporter struct {
	projects   ProjectReader
	scenes     SceneLister
	characters CharacterLister
	store      ObjectReader
	log        *slog.Logger
}

func New(projects ProjectReader, scenes SceneLister, characters CharacterLister, store ObjectReader, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{projects: projects, scenes: scenes, characters: characters, store: store, log: log}
}

// Bundle is a loaded project ready to be written out.
type Bundle struct {
	Project    *models.Project
	Scenes     []*models.GeneratedScene
	Characters []*models.Character

	store ObjectReader
	log   *slog.Logger
}

// Filename is the suggested download name for the archive.
func (b *Bundle) Filename() string {
	name := slug.Make(b.Project.Title)
	if name == "" {
		name = "project"
	}
	return name + ".zip"
}

// Load fetches the project rows. It fails with the repository's not-found
// error when the project is not owned by userID.
func (e *Exporter) Load(ctx context.Context, userID, projectID uuid.UUID) (*Bundle, error) {
	p, err := e.projects.GetForUser(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	scenes, err := e.scenes.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	chars, err := e.characters.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return &Bundle{Project: p, Scenes: scenes, Characters: chars, store: e.store, log: e.log}, nil
}

// WriteZip streams the archive to w. Objects missing from storage are
// skipped.
func (b *Bundle) WriteZip(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	modified := b.Project.UpdatedAt
	if modified.IsZero() {
		modified = time.Now()
	}

	if err := addFile(zw, "story.txt", []byte(b.Project.Story), modified); err != nil {
		return err
	}
	for _, sc := range b.Scenes {
		if sc.ImagePath == nil {
			continue
		}
		name := fmt.Sprintf("scenes/%03d.png", sc.SceneNo)
		if err := b.addObject(ctx, zw, name, *sc.ImagePath, modified); err != nil {
			return err
		}
	}
	used := map[string]int{}
	for _, c := range b.Characters {
		if c.ImagePath == nil {
			continue
		}
		base := slug.Make(c.Name)
		if base == "" {
			base = c.ID.String()
		}
		used[base]++
		if n := used[base]; n > 1 {
			base = fmt.Sprintf("%s-%d", base, n)
		}
		if err := b.addObject(ctx, zw, "characters/"+base+".png", *c.ImagePath, modified); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (b *Bundle) addObject(ctx context.Context, zw *zip.Writer, name, key string, modified time.Time) error {
	data, err := b.store.Get(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.log.Warn("export: skip missing object", "project_id", b.Project.ID, "key", key, "error", err)
		return nil
	}
	return addFile(zw, name, data, modified)
}

func addFile(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}
