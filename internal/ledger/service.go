package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/credits"
	"github.com/toonsmith/backend/internal/models"
)

// ErrLimitReached is returned when the caller has no remaining monthly credits.
var ErrLimitReached = errLimitReached

// Store is the persistence the ledger service needs; *Repository implements it.
type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Reserve(ctx context.Context, userID uuid.UUID, amount int, month time.Time, reference string) (*models.Profile, error)
	Refund(ctx context.Context, userID uuid.UUID, amount int, month time.Time, reference string) error
	DepositMonthly(ctx context.Context, month time.Time) (int, error)
	ApplyPurchase(ctx context.Context, pu Purchase, month time.Time) (bool, error)
	CancelPlan(ctx context.Context, userID uuid.UUID) error
	CancelSubscription(ctx context.Context, subscriptionID, eventID string) (bool, error)
}

type Service interface {
	Usage(ctx context.Context, userID uuid.UUID) (credits.Snapshot, error)
	Reserve(ctx context.Context, userID uuid.UUID, reference string) (credits.Snapshot, error)
	Refund(ctx context.Context, userID uuid.UUID, reference string) error
	DepositMonthly(ctx context.Context) (int, error)
	ApplyPurchase(ctx context.Context, pu Purchase) (bool, error)
	CancelPlan(ctx context.Context, userID uuid.UUID) error
	CancelSubscription(ctx context.Context, subscriptionID, eventID string) (bool, error)
}

type service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) Service {
	return &service{store: store, now: time.Now}
}

var _ Service = (*service)(nil)

// creditsPerImage is what one successful image generation costs.
const creditsPerImage = 1

func (s *service) Usage(ctx context.Context, userID uuid.UUID) (credits.Snapshot, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return credits.Snapshot{}, err
	}
	return credits.Compute(p, s.now()), nil
}

func (s *service) Reserve(ctx context.Context, userID uuid.UUID, reference string) (credits.Snapshot, error) {
	now := s.now()
	p, err := s.store.Reserve(ctx, userID, creditsPerImage, credits.MonthStart(now), reference)
	if err != nil {
		return credits.Snapshot{}, err
	}
	return credits.Compute(p, now), nil
}

func (s *service) Refund(ctx context.Context, userID uuid.UUID, reference string) error {
	return s.store.Refund(ctx, userID, creditsPerImage, credits.MonthStart(s.now()), reference)
}

func (s *service) DepositMonthly(ctx context.Context) (int, error) {
	return s.store.DepositMonthly(ctx, credits.MonthStart(s.now()))
}

func (s *service) ApplyPurchase(ctx context.Context, pu Purchase) (bool, error) {
	return s.store.ApplyPurchase(ctx, pu, credits.MonthStart(s.now()))
}

func (s *service) CancelPlan(ctx context.Context, userID uuid.UUID) error {
	return s.store.CancelPlan(ctx, userID)
}

func (s *service) CancelSubscription(ctx context.Context, subscriptionID, eventID string) (bool, error) {
	return s.store.CancelSubscription(ctx, subscriptionID, eventID)
}
