package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/auth"
	"github.com/toonsmith/backend/internal/models"
)

type contextKey string

const ctxUserKey contextKey = "user"

// SessionValidator resolves a session token to the caller's identity.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Identity, error)
}

// SessionAuth authenticates requests by session token (bearer header or
// cookie) and puts the caller's identity into the request context.
func SessionAuth(validator SessionValidator, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				apierror.Write(w, log, apierror.Unauthorized())
				return
			}
			ident, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidSession) {
					log.Error("validate session", "error", err)
				}
				apierror.Write(w, log, apierror.Unauthorized())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), ident)))
		})
	}
}

// UserFromCtx returns the authenticated caller or nil.
func UserFromCtx(ctx context.Context) *models.Identity {
	u, _ := ctx.Value(ctxUserKey).(*models.Identity)
	return u
}

// WithUser returns a context carrying the given identity.
func WithUser(ctx context.Context, ident *models.Identity) context.Context {
	return context.WithValue(ctx, ctxUserKey, ident)
}
