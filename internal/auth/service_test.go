package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toonsmith/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProvider struct {
	codes  map[string]string
	idents map[string]*models.Identity
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (string, error) {
	tok, ok := f.codes[code]
	if !ok {
		return "", ErrInvalidCredentials
	}
	return tok, nil
}

func (f *fakeProvider) VerifyAccessToken(token string) (*models.Identity, error) {
	id, ok := f.idents[token]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	cp := *id
	return &cp, nil
}

type fakeProfiles struct {
	upserts int
	profile map[uuid.UUID]*models.Profile
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, userID uuid.UUID, email string, free int) (*models.Profile, error) {
	f.upserts++
	if p, ok := f.profile[userID]; ok {
		p.Email = email
		return p, nil
	}
	p := &models.Profile{UserID: userID, Email: email, Plan: models.PlanFree, MonthlyBaseLimit: free}
	f.profile[userID] = p
	return p, nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, ok := f.profile[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

type memSessions struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemSessions() *memSessions { return &memSessions{data: map[string]string{}} }

func (m *memSessions) Save(_ context.Context, id, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = userID
	return nil
}

func (m *memSessions) Lookup(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	return u, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func newTestService(t *testing.T) (*service, *fakeProvider, *fakeProfiles, *memSessions) {
	t.Helper()
	userID := uuid.New()
	prov := &fakeProvider{
		codes:  map[string]string{"code-1": "provider-token"},
		idents: map[string]*models.Identity{"provider-token": {UserID: userID, Email: "reader@example.com"}},
	}
	profiles := &fakeProfiles{profile: map[uuid.UUID]*models.Profile{}}
	sessions := newMemSessions()
	svc := NewService(prov, profiles, sessions, Options{SessionSecret: "test-secret", SessionTTL: time.Hour, FreePlanCredits: 10})
	return svc, prov, profiles, sessions
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSignIn_CodeExchangeCreatesProfileAndSession(t *testing.T) {
	svc, _, profiles, sessions := newTestService(t)

	sess, err := svc.SignIn(context.Background(), "code-1", "verifier", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "reader@example.com", sess.Identity.Email)
	assert.Equal(t, 10, sess.Profile.MonthlyBaseLimit)
	assert.Equal(t, 1, profiles.upserts)
	assert.Len(t, sessions.data, 1)

	ident, err := svc.ValidateSession(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Identity.UserID, ident.UserID)
}

func TestSignIn_AccessTokenSkipsExchange(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	sess, err := svc.SignIn(context.Background(), "", "", "provider-token")
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", sess.Identity.Email)
}

func TestSignIn_RejectsUnknownCode(t *testing.T) {
	svc, _, profiles, _ := newTestService(t)
	_, err := svc.SignIn(context.Background(), "bogus", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, profiles.upserts)
}

func TestValidateSession_RevokedAfterSignOut(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	sess, err := svc.SignIn(context.Background(), "code-1", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), sess.Token))
	_, err = svc.ValidateSession(context.Background(), sess.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateSession_RejectsTamperedAndExpired(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	sess, err := svc.SignIn(context.Background(), "code-1", "", "")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
			RegisteredClaims: jwt.RegisteredClaims{ID: sess.Identity.SessionID, Subject: sess.Identity.UserID.String()},
		})
		tok, err := forged.SignedString([]byte("other-secret"))
		require.NoError(t, err)
		_, err = svc.ValidateSession(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired", func(t *testing.T) {
		later := svc.now().Add(2 * time.Hour)
		svc.now = func() time.Time { return later }
		defer func() { svc.now = time.Now }()
		_, err := svc.ValidateSession(context.Background(), sess.Token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateSession(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}
