package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/toonsmith/backend/internal/models"
)

// ErrInvalidCredentials is returned when the identity provider rejects a code or token.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider exchanges identity-provider credentials for a verified identity.
type Provider interface {
	ExchangeCode(ctx context.Context, code, verifier string) (string, error)
	VerifyAccessToken(token string) (*models.Identity, error)
}

// HTTPProvider talks to a hosted auth service that issues HS256 access
// tokens and exposes a PKCE token endpoint.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	jwtSecret  []byte
	httpClient httpkit.ClientInterface
}

func NewHTTPProvider(client httpkit.ClientInterface, baseURL, apiKey, jwtSecret string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		jwtSecret:  []byte(jwtSecret),
		httpClient: client,
	}
}

var _ Provider = (*HTTPProvider)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeCode trades a one-time PKCE code for the provider's access token.
// A 400, 401 or 403 from the provider means the code was rejected.
func (p *HTTPProvider) ExchangeCode(ctx context.Context, code, verifier string) (string, error) {
	if p.baseURL == "" {
		return "", errors.New("auth provider URL not configured")
	}
	body, err := json.Marshal(map[string]string{"auth_code": code, "code_verifier": verifier})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/token?grant_type=pkce", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)

	raw, err := p.httpClient.DoRequest(req)
	if err != nil {
		var statusErr *httpkit.NonRetryableHTTPError
		if errors.As(err, &statusErr) && rejectedStatus(statusErr.StatusCode) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth provider request: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", ErrInvalidCredentials
	}
	return tr.AccessToken, nil
}

func rejectedStatus(code int) bool {
	return code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden
}

type providerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// VerifyAccessToken checks the provider token signature and expiry.
func (p *HTTPProvider) VerifyAccessToken(token string) (*models.Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &providerClaims{}, func(t *jwt.Token) (interface{}, error) {
		return p.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	c, ok := tok.Claims.(*providerClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidCredentials
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidCredentials)
	}
	return &models.Identity{UserID: id, Email: c.Email}, nil
}
