package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/credits"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/middleware"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
)

type ProfileReader interface {
	Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Ledger is the credit service as seen by the dashboard.
type Ledger interface {
	Usage(ctx context.Context, userID uuid.UUID) (credits.Snapshot, error)
	Reserve(ctx context.Context, userID uuid.UUID, reference string) (credits.Snapshot, error)
	DepositMonthly(ctx context.Context) (int, error)
}

type LedgerEntries interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedger, error)
}

const (
	defaultLedgerLimit = 100
	maxLedgerLimit     = 500
)

type Handler struct {
	profiles ProfileReader
	ledger   Ledger
	entries  LedgerEntries
	log      *slog.Logger
}

func NewHandler(profiles ProfileReader, l Ledger, entries LedgerEntries, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{profiles: profiles, ledger: l, entries: entries, log: log}
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) *models.Identity {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		apierror.Write(w, h.log, apierror.Unauthorized())
	}
	return u
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		apierror.Write(w, h.log, apierror.NotFound("profile not found"))
	case errors.Is(err, ledger.ErrLimitReached):
		apierror.Write(w, h.log, apierror.TooManyRequests("monthly credit limit reached"))
	default:
		apierror.Write(w, h.log, apierror.Internal("internal error", err))
	}
}

type meResponse struct {
	User    *models.Identity `json:"user"`
	Profile *models.Profile  `json:"profile"`
}

// GET /api/auth/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u := h.user(w, r)
	if u == nil {
		return
	}
	p, err := h.profiles.Profile(r.Context(), u.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, meResponse{User: u, Profile: p})
}

// GET /api/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	u := h.user(w, r)
	if u == nil {
		return
	}
	snap, err := h.ledger.Usage(r.Context(), u.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, snap)
}

// POST /api/usage reserves one credit on behalf of the client.
func (h *Handler) ReserveUsage(w http.ResponseWriter, r *http.Request) {
	u := h.user(w, r)
	if u == nil {
		return
	}
	snap, err := h.ledger.Reserve(r.Context(), u.UserID, "api:usage")
	if err != nil {
		h.fail(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, snap)
}

// GET /api/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	u := h.user(w, r)
	if u == nil {
		return
	}
	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apierror.Write(w, h.log, apierror.BadRequest("invalid limit"))
			return
		}
		limit = min(n, maxLedgerLimit)
	}
	entries, err := h.entries.ListByUserID(r.Context(), u.UserID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []*models.CreditLedger{}
	}
	apierror.WriteJSON(w, http.StatusOK, entries)
}

// POST /api/monthly-deposit, guarded by the cron secret.
func (h *Handler) MonthlyDeposit(w http.ResponseWriter, r *http.Request) {
	n, err := h.ledger.DepositMonthly(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Info("monthly deposit applied", "profiles", n, "source", "cron")
	apierror.WriteJSON(w, http.StatusOK, map[string]int{"deposited": n})
}
