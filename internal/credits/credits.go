// Package credits computes a profile's monthly allowance.
//
// The stored counters are only meaningful inside the month that
// month_start falls in. Outside that month the bonus and used counters
// count as zero; writes persist that reset lazily (see package ledger).
package credits

import (
	"time"

	"github.com/toonsmith/backend/internal/models"
)

// Snapshot is the allowance view returned to clients.
type Snapshot struct {
	Plan       string    `json:"plan"`
	MonthStart time.Time `json:"monthStart"`
	Limit      int       `json:"limit"`
	Used       int       `json:"used"`
	Remaining  int       `json:"remaining"`
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// InCurrentMonth reports whether monthStart lies in the same UTC calendar month as now.
func InCurrentMonth(monthStart, now time.Time) bool {
	a, b := monthStart.UTC(), now.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// Compute returns the allowance for p as of now.
func Compute(p *models.Profile, now time.Time) Snapshot {
	bonus, used := p.MonthlyBonusCredits, p.MonthlyUsed
	monthStart := p.MonthStart
	if !InCurrentMonth(p.MonthStart, now) {
		bonus, used = 0, 0
		monthStart = MonthStart(now)
	}
	limit := max(0, p.MonthlyBaseLimit+bonus)
	return Snapshot{
		Plan:       p.Plan,
		MonthStart: monthStart,
		Limit:      limit,
		Used:       used,
		Remaining:  max(0, limit-used),
	}
}

// Remaining is shorthand for Compute(p, now).Remaining.
func Remaining(p *models.Profile, now time.Time) int {
	return Compute(p, now).Remaining
}
