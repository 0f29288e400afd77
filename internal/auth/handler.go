package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toonsmith/backend/internal/apierror"
)

// CookieName is the HttpOnly cookie that carries the session token.
const CookieName = "session"

type CallbackRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	AccessToken  string `json:"access_token"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type CallbackResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type Handler struct {
	svc          Service
	secureCookie bool
	log          *slog.Logger
}

func NewHandler(svc Service, secureCookie bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, secureCookie: secureCookie, log: log}
}

// Callback handles POST /api/auth/callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, h.log, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.Code == "" && req.AccessToken == "" {
		apierror.Write(w, h.log, apierror.BadRequest("code or access_token is required"))
		return
	}
	sess, err := h.svc.SignIn(r.Context(), req.Code, req.CodeVerifier, req.AccessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			apierror.Write(w, h.log, apierror.Unauthorized())
			return
		}
		apierror.Write(w, h.log, apierror.Internal("sign-in failed", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.log.Info("user signed in", "user_id", sess.Identity.UserID)
	apierror.WriteJSON(w, http.StatusOK, CallbackResponse{
		User:      UserResponse{ID: sess.Identity.UserID.String(), Email: sess.Identity.Email},
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// SignOut handles POST /api/auth/signout. It always clears the cookie.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := TokenFromRequest(r); token != "" {
		if err := h.svc.SignOut(r.Context(), token); err != nil {
			h.log.Warn("revoke session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// TokenFromRequest returns the session token from the Authorization bearer
// header, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
