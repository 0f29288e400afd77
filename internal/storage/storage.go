// Package storage keeps generated images in an object store and hands out
// their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("storage: object not found")

// Store is an object store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// SceneKey is where the render of a scene is stored. The timestamp makes
// every render a new object so a superseded one can be deleted safely.
func SceneKey(projectID uuid.UUID, sceneNo int, at time.Time) string {
	return fmt.Sprintf("projects/%s/scenes/%d-%d.png", projectID, sceneNo, at.Unix())
}

// CharacterKey is where a character reference image is stored.
func CharacterKey(projectID, characterID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("projects/%s/characters/%s-%d.png", projectID, characterID, at.Unix())
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)[1:]
	if k == "" || k != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
