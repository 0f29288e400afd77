package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/models"
)

// ErrInvalidSession is returned for missing, malformed, expired or revoked session tokens.
var ErrInvalidSession = errors.New("invalid session")

// Session is what a successful sign-in hands back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  models.Identity
	Profile   *models.Profile
}

type Service interface {
	SignIn(ctx context.Context, code, verifier, accessToken string) (*Session, error)
	ValidateSession(ctx context.Context, token string) (*models.Identity, error)
	SignOut(ctx context.Context, token string) error
	Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// ProfileStore persists the profile row created on first sign-in.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, userID uuid.UUID, email string, freeCredits int) (*models.Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type Options struct {
	SessionSecret   string
	SessionTTL      time.Duration
	FreePlanCredits int
}

type service struct {
	provider    Provider
	profiles    ProfileStore
	sessions    SessionStore
	secret      []byte
	ttl         time.Duration
	freeCredits int
	now         func() time.Time
}

func NewService(provider Provider, profiles ProfileStore, sessions SessionStore, opts Options) *service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &service{
		provider:    provider,
		profiles:    profiles,
		sessions:    sessions,
		secret:      []byte(opts.SessionSecret),
		ttl:         opts.SessionTTL,
		freeCredits: opts.FreePlanCredits,
		now:         time.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// SignIn accepts either a one-time code (exchanged with the provider) or a
// provider access token, upserts the profile and opens a session.
func (s *service) SignIn(ctx context.Context, code, verifier, accessToken string) (*Session, error) {
	if accessToken == "" {
		if code == "" {
			return nil, ErrInvalidCredentials
		}
		tok, err := s.provider.ExchangeCode(ctx, code, verifier)
		if err != nil {
			return nil, err
		}
		accessToken = tok
	}
	ident, err := s.provider.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	prof, err := s.profiles.UpsertProfile(ctx, ident.UserID, ident.Email, s.freeCredits)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	ident.SessionID = uuid.NewString()
	now := s.now()
	expires := now.Add(s.ttl)
	token, err := s.issueToken(*ident, now, expires)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, ident.SessionID, ident.UserID.String(), s.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, Identity: *ident, Profile: prof}, nil
}

func (s *service) issueToken(ident models.Identity, now, expires time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ident.SessionID,
			Subject:   ident.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: ident.Email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) parse(token string) (*models.Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidSession
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.ID == "" {
		return nil, ErrInvalidSession
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return &models.Identity{UserID: id, Email: c.Email, SessionID: c.ID}, nil
}

// ValidateSession verifies the token and that its session was not revoked.
func (s *service) ValidateSession(ctx context.Context, token string) (*models.Identity, error) {
	ident, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	owner, err := s.sessions.Lookup(ctx, ident.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if owner != ident.UserID.String() {
		return nil, ErrInvalidSession
	}
	return ident, nil
}

func (s *service) SignOut(ctx context.Context, token string) error {
	ident, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, ident.SessionID)
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return s.profiles.GetProfile(ctx, userID)
}
