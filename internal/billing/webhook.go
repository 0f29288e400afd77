package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
)

const maxWebhookBody = 64 << 10

// WebhookHandler verifies and applies Stripe events.
type WebhookHandler struct {
	ledger Ledger
	secret string
	log    *slog.Logger
}

func NewWebhookHandler(l Ledger, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{ledger: l, secret: secret, log: log}
}

// ServeHTTP handles POST /api/webhooks/stripe.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		apierror.Write(w, h.log, apierror.BadRequest("could not read body"))
		return
	}
	if h.secret == "" {
		apierror.Write(w, h.log, apierror.Internal("webhook secret not configured", nil))
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.Warn("stripe webhook signature rejected", "error", err)
		apierror.Write(w, h.log, apierror.BadRequest("invalid signature"))
		return
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		err = h.checkoutCompleted(r, event)
	case "customer.subscription.deleted":
		err = h.subscriptionDeleted(r, event)
	default:
		h.log.Debug("stripe event ignored", "type", event.Type, "id", event.ID)
	}
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) checkoutCompleted(r *http.Request, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return apierror.BadRequest("malformed checkout session")
	}
	pu, err := purchaseFromSession(event.ID, &sess)
	if err != nil {
		// Not ours to apply (e.g. created outside this app); acknowledge so Stripe stops retrying.
		h.log.Warn("checkout session without usable metadata", "event_id", event.ID, "error", err)
		return nil
	}
	applied, err := h.ledger.ApplyPurchase(r.Context(), pu)
	if errors.Is(err, repository.ErrNotFound) {
		h.log.Warn("checkout for unknown profile", "event_id", event.ID, "user_id", pu.UserID)
		return nil
	}
	if err != nil {
		return apierror.Internal("apply purchase", err)
	}
	h.log.Info("purchase applied", "event_id", event.ID, "user_id", pu.UserID,
		"plan", pu.Plan, "credits", pu.Credits, "duplicate", !applied)
	return nil
}

func (h *WebhookHandler) subscriptionDeleted(r *http.Request, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil || sub.ID == "" {
		return apierror.BadRequest("malformed subscription")
	}
	applied, err := h.ledger.CancelSubscription(r.Context(), sub.ID, event.ID)
	if err != nil {
		return apierror.Internal("cancel subscription", err)
	}
	h.log.Info("subscription ended", "event_id", event.ID, "subscription_id", sub.ID, "duplicate", !applied)
	return nil
}

// purchaseFromSession reads the user, plan and credits the checkout was
// opened with.
func purchaseFromSession(eventID string, sess *stripe.CheckoutSession) (ledger.Purchase, error) {
	rawUser := sess.ClientReferenceID
	if rawUser == "" {
		rawUser = sess.Metadata["user_id"]
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return ledger.Purchase{}, fmt.Errorf("user id %q: %w", rawUser, err)
	}
	credits, err := strconv.Atoi(sess.Metadata["credits"])
	if err != nil || credits <= 0 {
		return ledger.Purchase{}, fmt.Errorf("credits %q", sess.Metadata["credits"])
	}
	plan := sess.Metadata["plan"]
	if !models.IsPaidPlan(plan) {
		return ledger.Purchase{}, fmt.Errorf("plan %q is not a paid plan", plan)
	}
	pu := ledger.Purchase{EventID: eventID, UserID: userID, Plan: plan, Credits: credits}
	if sess.Customer != nil {
		pu.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		pu.SubscriptionID = sess.Subscription.ID
	}
	return pu, nil
}
