package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "http://localhost:8080/files/")
	require.NoError(t, err)

	key := "projects/p1/scenes/1-100.png"
	require.NoError(t, l.Put(ctx, key, []byte("img"), "image/png"))

	got, err := l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)
	assert.Equal(t, "http://localhost:8080/files/projects/p1/scenes/1-100.png", l.PublicURL(key))

	require.NoError(t, l.Delete(ctx, key))
	_, err = l.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting again is fine
	assert.NoError(t, l.Delete(ctx, key))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	for _, key := range []string{"../etc/passwd", "a/../../b", ""} {
		assert.Error(t, l.Put(context.Background(), key, []byte("x"), ""), "key %q", key)
	}
}

func TestKeys(t *testing.T) {
	pid := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "projects/11111111-2222-3333-4444-555555555555/scenes/3-1700000000.png", SceneKey(pid, 3, at))
	cid := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	assert.Equal(t, "projects/11111111-2222-3333-4444-555555555555/characters/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee-1700000000.png", CharacterKey(pid, cid, at))
}
