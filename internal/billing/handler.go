package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/middleware"
	"github.com/toonsmith/backend/internal/repository"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type checkoutRequest struct {
	PlanType  string `json:"planType"`
	PlanIndex *int   `json:"planIndex"`
}

// CreateCheckoutSession handles POST /api/create-checkout-session.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		apierror.Write(w, h.log, apierror.Unauthorized())
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, h.log, apierror.BadRequest("invalid request body"))
		return
	}
	if req.PlanType == "" || req.PlanIndex == nil {
		apierror.Write(w, h.log, apierror.BadRequest("planType and planIndex are required"))
		return
	}
	url, err := h.svc.CreateCheckout(r.Context(), user.UserID, req.PlanType, *req.PlanIndex)
	if err != nil {
		apierror.Write(w, h.log, h.mapError(err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CancelSubscription handles POST /api/cancel-subscription.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		apierror.Write(w, h.log, apierror.Unauthorized())
		return
	}
	if err := h.svc.CancelSubscription(r.Context(), user.UserID); err != nil {
		apierror.Write(w, h.log, h.mapError(err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownPlan):
		return apierror.BadRequest("unknown plan")
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("profile not found")
	case errors.Is(err, ErrNoSubscription):
		return apierror.NotFound("no active subscription")
	case errors.Is(err, ErrNotConfigured):
		return apierror.Internal("billing not configured", err)
	default:
		return apierror.Internal("payment provider error", err)
	}
}
