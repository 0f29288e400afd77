package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toonsmith/backend/internal/models"
)

// memStore mirrors the Repository's SQL semantics in memory.
type memStore struct {
	profiles map[uuid.UUID]*models.Profile
	entries  []models.CreditLedger
	events   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{profiles: map[uuid.UUID]*models.Profile{}, events: map[string]bool{}}
}

func (m *memStore) roll(p *models.Profile, month time.Time) {
	if p.MonthStart.Year() != month.Year() || p.MonthStart.Month() != month.Month() {
		p.MonthlyUsed, p.MonthlyBonusCredits = 0, 0
	}
	p.MonthStart = month
}

func (m *memStore) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Reserve(_ context.Context, id uuid.UUID, amount int, month time.Time, ref string) (*models.Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	used, bonus := p.MonthlyUsed, p.MonthlyBonusCredits
	if p.MonthStart.Month() != month.Month() || p.MonthStart.Year() != month.Year() {
		used, bonus = 0, 0
	}
	if max(0, p.MonthlyBaseLimit+bonus)-used < amount {
		return nil, ErrLimitReached
	}
	m.roll(p, month)
	p.MonthlyUsed += amount
	m.entries = append(m.entries, models.CreditLedger{UserID: id, EntryType: models.CreditEntryUsage, Amount: -amount})
	cp := *p
	return &cp, nil
}

func (m *memStore) Refund(_ context.Context, id uuid.UUID, amount int, month time.Time, _ string) error {
	p, ok := m.profiles[id]
	if !ok {
		return errNotFoundForTest
	}
	m.roll(p, month)
	p.MonthlyUsed = max(0, p.MonthlyUsed-amount)
	m.entries = append(m.entries, models.CreditLedger{UserID: id, EntryType: models.CreditEntryRefund, Amount: amount})
	return nil
}

func (m *memStore) DepositMonthly(_ context.Context, month time.Time) (int, error) {
	n := 0
	for id, p := range m.profiles {
		if !models.IsPaidPlan(p.Plan) || p.CurrentPlanCredits <= 0 {
			continue
		}
		if p.LastDepositMonth != nil && !p.LastDepositMonth.Before(month) {
			continue
		}
		m.roll(p, month)
		p.MonthlyBaseLimit += p.CurrentPlanCredits
		p.LifetimeCreditsPurchased += p.CurrentPlanCredits
		p.MonthlyUsed = 0
		mm := month
		p.LastDepositMonth = &mm
		m.entries = append(m.entries, models.CreditLedger{UserID: id, EntryType: models.CreditEntryMonthlyDeposit, Amount: p.CurrentPlanCredits})
		n++
	}
	return n, nil
}

func (m *memStore) ApplyPurchase(_ context.Context, pu Purchase, month time.Time) (bool, error) {
	if m.events[pu.EventID] {
		return false, nil
	}
	m.events[pu.EventID] = true
	p := m.profiles[pu.UserID]
	m.roll(p, month)
	p.MonthlyBaseLimit += pu.Credits
	p.LifetimeCreditsPurchased += pu.Credits
	p.CurrentPlanCredits = pu.Credits
	p.Plan = pu.Plan
	mm := month
	p.LastDepositMonth = &mm
	return true, nil
}

func (m *memStore) CancelPlan(_ context.Context, id uuid.UUID) error {
	p := m.profiles[id]
	p.Plan, p.CurrentPlanCredits = models.PlanFree, 0
	return nil
}

func (m *memStore) CancelSubscription(context.Context, string, string) (bool, error) {
	return true, nil
}

var errNotFoundForTest = assert.AnError

func newTestService(store Store, now time.Time) *service {
	return &service{store: store, now: func() time.Time { return now }}
}

// ---------------------------------------------------------------------------
// Reserve / Refund
// ---------------------------------------------------------------------------

func TestReserve_RejectsWhenExhausted(t *testing.T) {
	now := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	id := uuid.New()
	store.profiles[id] = &models.Profile{UserID: id, MonthStart: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), MonthlyBaseLimit: 50, MonthlyUsed: 50}

	svc := newTestService(store, now)
	_, err := svc.Reserve(context.Background(), id, "scene")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Empty(t, store.entries)
}

func TestReserve_ConsumesOneCredit(t *testing.T) {
	now := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	id := uuid.New()
	store.profiles[id] = &models.Profile{UserID: id, MonthStart: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), MonthlyBaseLimit: 3, MonthlyUsed: 1}

	svc := newTestService(store, now)
	snap, err := svc.Reserve(context.Background(), id, "scene")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Used)
	assert.Equal(t, 1, snap.Remaining)

	require.NoError(t, svc.Refund(context.Background(), id, "scene"))
	usage, err := svc.Usage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
	require.Len(t, store.entries, 2)
	assert.Equal(t, models.CreditEntryRefund, store.entries[1].EntryType)
}

func TestReserve_RollsOverStaleMonth(t *testing.T) {
	now := time.Date(2026, time.June, 2, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	id := uuid.New()
	store.profiles[id] = &models.Profile{UserID: id, MonthStart: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), MonthlyBaseLimit: 5, MonthlyUsed: 5, MonthlyBonusCredits: 3}

	svc := newTestService(store, now)
	snap, err := svc.Reserve(context.Background(), id, "scene")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Used)
	assert.Equal(t, 5, snap.Limit)
	assert.Equal(t, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), store.profiles[id].MonthStart)
}

// ---------------------------------------------------------------------------
// Monthly deposit / purchase
// ---------------------------------------------------------------------------

func TestDepositMonthly_PaidPlansOnlyOncePerMonth(t *testing.T) {
	now := time.Date(2026, time.July, 1, 0, 5, 0, 0, time.UTC)
	store := newMemStore()
	paid, free := uuid.New(), uuid.New()
	store.profiles[paid] = &models.Profile{UserID: paid, Plan: models.PlanPro, CurrentPlanCredits: 100, MonthlyBaseLimit: 100, MonthlyUsed: 80, MonthStart: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)}
	store.profiles[free] = &models.Profile{UserID: free, Plan: models.PlanFree, MonthlyBaseLimit: 10, MonthStart: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)}

	svc := newTestService(store, now)
	n, err := svc.DepositMonthly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p := store.profiles[paid]
	assert.Equal(t, 200, p.MonthlyBaseLimit)
	assert.Equal(t, 100, p.LifetimeCreditsPurchased)
	assert.Equal(t, 0, p.MonthlyUsed)
	assert.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), p.MonthStart)

	n, err = svc.DepositMonthly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run in the same month must not deposit again")
}

func TestApplyPurchase_AddsAndIsIdempotent(t *testing.T) {
	now := time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	id := uuid.New()
	store.profiles[id] = &models.Profile{UserID: id, Plan: models.PlanFree, MonthlyBaseLimit: 10, MonthStart: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)}

	svc := newTestService(store, now)
	pu := Purchase{EventID: "evt_1", UserID: id, Plan: models.PlanPro, Credits: 100}
	applied, err := svc.ApplyPurchase(context.Background(), pu)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ApplyPurchase(context.Background(), pu)
	require.NoError(t, err)
	assert.False(t, applied)

	p := store.profiles[id]
	assert.Equal(t, 110, p.MonthlyBaseLimit)
	assert.Equal(t, 100, p.CurrentPlanCredits)
	assert.Equal(t, models.PlanPro, p.Plan)
}
