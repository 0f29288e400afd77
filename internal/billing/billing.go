// Package billing sells credit plans through Stripe Checkout and reconciles
// Stripe webhook events into profile credits.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"

	"github.com/toonsmith/backend/internal/config"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/models"
)

var (
	// ErrUnknownPlan is returned for a plan type or tier index not in the catalogue.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrNoSubscription is returned when cancelling without an active subscription.
	ErrNoSubscription = errors.New("no active subscription")
	// ErrNotConfigured is returned when no Stripe secret key is set.
	ErrNotConfigured = errors.New("billing: stripe not configured")
)

// StripeAPI is the part of the Stripe API used here.
type StripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

// stripeAPI calls Stripe through the package-level clients (stripe.Key).
type stripeAPI struct{}

func (stripeAPI) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeAPI) CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	return subscription.Cancel(id, params)
}

// ProfileReader loads the caller's profile.
type ProfileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Ledger is the credit bookkeeping billing drives.
type Ledger interface {
	ApplyPurchase(ctx context.Context, pu ledger.Purchase) (bool, error)
	CancelPlan(ctx context.Context, userID uuid.UUID) error
	CancelSubscription(ctx context.Context, subscriptionID, eventID string) (bool, error)
}

type Options struct {
	SecretKey string
	Plans     map[string][]config.PlanTier
	// ReturnURL is the front-end base the checkout redirects back to.
	ReturnURL string
}

type Service struct {
	api       StripeAPI
	profiles  ProfileReader
	ledger    Ledger
	plans     map[string][]config.PlanTier
	returnURL string
	enabled   bool
	log       *slog.Logger
}

func NewService(profiles ProfileReader, l Ledger, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.SecretKey != "" {
		stripe.Key = opts.SecretKey
	}
	return &Service{
		api:       stripeAPI{},
		profiles:  profiles,
		ledger:    l,
		plans:     opts.Plans,
		returnURL: strings.TrimRight(opts.ReturnURL, "/"),
		enabled:   opts.SecretKey != "",
		log:       log,
	}
}

// Tier looks up a plan tier by plan type and index.
func (s *Service) Tier(planType string, index int) (config.PlanTier, error) {
	if !models.IsPaidPlan(planType) {
		return config.PlanTier{}, ErrUnknownPlan
	}
	tiers := s.plans[planType]
	if index < 0 || index >= len(tiers) {
		return config.PlanTier{}, ErrUnknownPlan
	}
	return tiers[index], nil
}

// CreateCheckout opens a subscription checkout for a plan tier and returns its URL.
func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, planType string, index int) (string, error) {
	tier, err := s.Tier(planType, index)
	if err != nil {
		return "", err
	}
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !s.enabled {
		return "", ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(tier.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.returnURL + "/billing?status=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.returnURL + "/billing?status=cancelled"),
		ClientReferenceID: stripe.String(userID.String()),
	}
	params.Context = ctx
	if profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		params.Customer = profile.StripeCustomerID
	} else if profile.Email != "" {
		params.CustomerEmail = stripe.String(profile.Email)
	}
	params.AddMetadata("user_id", userID.String())
	params.AddMetadata("plan", planType)
	params.AddMetadata("credits", strconv.Itoa(tier.Credits))

	sess, err := s.api.NewCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CancelSubscription cancels the caller's subscription at Stripe and drops
// them to the free plan.
func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) error {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile.StripeSubscriptionID == nil || *profile.StripeSubscriptionID == "" {
		return ErrNoSubscription
	}
	if !s.enabled {
		return ErrNotConfigured
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := s.api.CancelSubscription(*profile.StripeSubscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return s.ledger.CancelPlan(ctx, userID)
}
