package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/credits"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/repository"
)

// CreditReserver is the part of the ledger the credit gate uses.
type CreditReserver interface {
	Reserve(ctx context.Context, userID uuid.UUID, reference string) (credits.Snapshot, error)
	Refund(ctx context.Context, userID uuid.UUID, reference string) error
}

// CreditGate reserves one credit before the wrapped handler runs and
// rejects with 429 when the allowance is exhausted, so no upstream model is
// called. When the handler answers with an error status the credit is
// refunded; a failed refund is logged and not surfaced.
func CreditGate(reserver CreditReserver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromCtx(r.Context())
			if user == nil {
				apierror.Write(w, log, apierror.Unauthorized())
				return
			}
			reference := r.URL.Path
			if _, err := reserver.Reserve(r.Context(), user.UserID, reference); err != nil {
				switch {
				case errors.Is(err, ledger.ErrLimitReached):
					apierror.Write(w, log, apierror.TooManyRequests("monthly credit limit reached"))
				case errors.Is(err, repository.ErrNotFound):
					apierror.Write(w, log, apierror.NotFound("profile not found"))
				default:
					apierror.Write(w, log, apierror.Internal("failed to check credits", err))
				}
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusBadRequest {
				if err := reserver.Refund(context.WithoutCancel(r.Context()), user.UserID, reference); err != nil {
					log.Warn("credit refund failed", "user_id", user.UserID, "path", reference, "error", err)
				}
			}
		})
	}
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.wroteHeader = true
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
