package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan enums.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// IsPaidPlan reports whether plan receives monthly deposits.
func IsPaidPlan(plan string) bool {
	return plan == PlanPro || plan == PlanEnterprise
}

// Profile is the per-user row holding plan and credit counters.
type Profile struct {
	UserID                   uuid.UUID  `json:"user_id"`
	Email                    string     `json:"email"`
	Plan                     string     `json:"plan"`
	MonthStart               time.Time  `json:"month_start"`
	MonthlyBaseLimit         int        `json:"monthly_base_limit"`
	MonthlyBonusCredits      int        `json:"monthly_bonus_credits"`
	MonthlyUsed              int        `json:"monthly_used"`
	CurrentPlanCredits       int        `json:"current_plan_credits"`
	LifetimeCreditsPurchased int        `json:"lifetime_credits_purchased"`
	StripeCustomerID         *string    `json:"-"`
	StripeSubscriptionID     *string    `json:"-"`
	LastDepositMonth         *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}
