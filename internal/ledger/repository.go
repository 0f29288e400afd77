package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
)

var errLimitReached = errors.New("monthly credit limit reached")

// The rolled* fragments read a counter as it stands in the month given by
// $3 (a date, first of the current month). A row whose month_start is in an
// earlier month contributes zero, and every write below persists that reset.
const (
	inMonth     = `date_trunc('month', month_start)::date = $3::date`
	rolledUsed  = `(CASE WHEN ` + inMonth + ` THEN monthly_used ELSE 0 END)`
	rolledBonus = `(CASE WHEN ` + inMonth + ` THEN monthly_bonus_credits ELSE 0 END)`
)

type Repository struct {
	pool    *pgxpool.Pool
	entries *repository.CreditRepo
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, entries: repository.NewCreditRepo(pool)}
}

func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return repository.ScanProfile(r.pool.QueryRow(ctx, `
		SELECT `+repository.ProfileColumns()+` FROM profiles WHERE user_id = $1
	`, userID))
}

// Reserve consumes amount credits in one conditional UPDATE: the row only
// changes when the rolled-over remaining allowance covers amount, so
// concurrent reservations cannot overshoot the limit.
func (r *Repository) Reserve(ctx context.Context, userID uuid.UUID, amount int, month time.Time, reference string) (*models.Profile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := repository.ScanProfile(tx.QueryRow(ctx, `
		UPDATE profiles SET
			monthly_used = `+rolledUsed+` + $2,
			monthly_bonus_credits = `+rolledBonus+`,
			month_start = $3::date,
			updated_at = now()
		WHERE user_id = $1
		  AND GREATEST(0, monthly_base_limit + `+rolledBonus+`) - `+rolledUsed+` >= $2
		RETURNING `+repository.ProfileColumns(),
		userID, amount, month))
	if errors.Is(err, repository.ErrNotFound) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, repository.ErrNotFound
		}
		return nil, errLimitReached
	}
	if err != nil {
		return nil, err
	}
	if err := r.insertEntry(ctx, tx, userID, models.CreditEntryUsage, -amount, reference); err != nil {
		return nil, err
	}
	return p, tx.Commit(ctx)
}

// Refund gives back amount previously reserved in the same month.
func (r *Repository) Refund(ctx context.Context, userID uuid.UUID, amount int, month time.Time, reference string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE profiles SET
			monthly_used = GREATEST(0, `+rolledUsed+` - $2),
			monthly_bonus_credits = `+rolledBonus+`,
			month_start = $3::date,
			updated_at = now()
		WHERE user_id = $1
	`, userID, amount, month)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if err := r.insertEntry(ctx, tx, userID, models.CreditEntryRefund, amount, reference); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DepositMonthly tops up every paid profile that has not been topped up in
// month: base and lifetime grow by current_plan_credits, used resets to 0.
// It returns the number of profiles credited.
func (r *Repository) DepositMonthly(ctx context.Context, month time.Time) (int, error) {
	reference := "deposit:" + month.Format("2006-01")
	tag, err := r.pool.Exec(ctx, `
		WITH deposited AS (
			UPDATE profiles SET
				monthly_base_limit = monthly_base_limit + current_plan_credits,
				lifetime_credits_purchased = lifetime_credits_purchased + current_plan_credits,
				monthly_used = 0,
				monthly_bonus_credits = `+rolledBonus+`,
				month_start = $3::date,
				last_deposit_month = $3::date,
				updated_at = now()
			WHERE plan IN ($1, $2)
			  AND current_plan_credits > 0
			  AND (last_deposit_month IS NULL OR last_deposit_month < $3::date)
			RETURNING user_id, current_plan_credits
		)
		INSERT INTO credit_ledger (user_id, entry_type, amount, reference)
		SELECT user_id, $4::text, current_plan_credits, $5::text FROM deposited
	`, models.PlanPro, models.PlanEnterprise, month, models.CreditEntryMonthlyDeposit, reference)
	if err != nil {
		return 0, fmt.Errorf("monthly deposit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Purchase is a completed checkout to reconcile into a profile.
type Purchase struct {
	EventID        string
	UserID         uuid.UUID
	Plan           string
	Credits        int
	CustomerID     string
	SubscriptionID string
}

// ApplyPurchase adds the purchased credits (never replaces) and records them
// as the plan's recurring monthly amount. Returns false when the event was
// already applied.
func (r *Repository) ApplyPurchase(ctx context.Context, pu Purchase, month time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	fresh, err := recordEvent(ctx, tx, pu.EventID, "checkout.session.completed")
	if err != nil || !fresh {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE profiles SET
			monthly_base_limit = monthly_base_limit + $2,
			lifetime_credits_purchased = lifetime_credits_purchased + $2,
			current_plan_credits = $2,
			monthly_used = `+rolledUsed+`,
			monthly_bonus_credits = `+rolledBonus+`,
			month_start = $3::date,
			last_deposit_month = $3::date,
			plan = $4,
			stripe_customer_id = COALESCE(NULLIF($5, ''), stripe_customer_id),
			stripe_subscription_id = COALESCE(NULLIF($6, ''), stripe_subscription_id),
			updated_at = now()
		WHERE user_id = $1
	`, pu.UserID, pu.Credits, month, pu.Plan, pu.CustomerID, pu.SubscriptionID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, repository.ErrNotFound
	}
	if err := r.insertEntry(ctx, tx, pu.UserID, models.CreditEntryPurchase, pu.Credits, pu.EventID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// CancelPlan drops the user back to the free plan. Credits already deposited stay.
func (r *Repository) CancelPlan(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles SET plan = $2, current_plan_credits = 0, stripe_subscription_id = NULL, updated_at = now()
		WHERE user_id = $1
	`, userID, models.PlanFree)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CancelSubscription is CancelPlan keyed by the payment provider's
// subscription id, deduplicated on eventID.
func (r *Repository) CancelSubscription(ctx context.Context, subscriptionID, eventID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	fresh, err := recordEvent(ctx, tx, eventID, "customer.subscription.deleted")
	if err != nil || !fresh {
		return false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE profiles SET plan = $2, current_plan_credits = 0, stripe_subscription_id = NULL, updated_at = now()
		WHERE stripe_subscription_id = $1
	`, subscriptionID, models.PlanFree); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func recordEvent(ctx context.Context, tx pgx.Tx, id, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO stripe_events (id, event_type) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING
	`, id, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) insertEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, entryType string, amount int, reference string) error {
	entry := &models.CreditLedger{UserID: userID, EntryType: entryType, Amount: amount}
	if reference != "" {
		entry.Reference = &reference
	}
	return r.entries.CreateTx(ctx, tx, entry)
}
