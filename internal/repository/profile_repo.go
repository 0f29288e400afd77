package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonsmith/backend/internal/models"
)

const profileColumns = `user_id, email, plan, month_start, monthly_base_limit, monthly_bonus_credits, monthly_used,
	current_plan_credits, lifetime_credits_purchased, stripe_customer_id, stripe_subscription_id, last_deposit_month,
	created_at, updated_at`

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// ScanProfile scans a row selected with the profile column list.
func ScanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.UserID, &p.Email, &p.Plan, &p.MonthStart, &p.MonthlyBaseLimit, &p.MonthlyBonusCredits, &p.MonthlyUsed,
		&p.CurrentPlanCredits, &p.LifetimeCreditsPurchased, &p.StripeCustomerID, &p.StripeSubscriptionID, &p.LastDepositMonth,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ProfileColumns is the column list ScanProfile expects.
func ProfileColumns() string { return profileColumns }

func (r *ProfileRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return ScanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}
