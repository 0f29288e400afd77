package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/toonsmith/backend/internal/apierror"
)

// CronSecret admits only requests bearing the shared scheduler secret.
// An empty secret disables the endpoint entirely.
func CronSecret(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if secret == "" || len(h) <= 7 || !strings.EqualFold(h[:7], "bearer ") {
				apierror.Write(w, log, apierror.Unauthorized())
				return
			}
			got := strings.TrimSpace(h[7:])
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				apierror.Write(w, log, apierror.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
