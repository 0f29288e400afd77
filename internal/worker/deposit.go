// Package worker holds the River background jobs: the monthly credit
// deposit and deletion of superseded storage objects.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

type MonthlyDepositArgs struct{}

func (MonthlyDepositArgs) Kind() string { return "monthly_deposit" }

// Depositor applies this month's plan credits to every paid profile.
type Depositor interface {
	DepositMonthly(ctx context.Context) (int, error)
}

type MonthlyDepositWorker struct {
	river.WorkerDefaults[MonthlyDepositArgs]
	depositor Depositor
	log       *slog.Logger
}

func NewMonthlyDepositWorker(d Depositor, log *slog.Logger) *MonthlyDepositWorker {
	if log == nil {
		log = slog.Default()
	}
	return &MonthlyDepositWorker{depositor: d, log: log}
}

func (w *MonthlyDepositWorker) Work(ctx context.Context, _ *river.Job[MonthlyDepositArgs]) error {
	n, err := w.depositor.DepositMonthly(ctx)
	if err != nil {
		return fmt.Errorf("monthly deposit: %w", err)
	}
	w.log.Info("monthly deposit applied", "profiles", n)
	return nil
}

// monthlySchedule fires once a month on the 1st at the given UTC offset
// from midnight.
type monthlySchedule struct {
	offset time.Duration
}

// Next returns the first firing time strictly after t.
func (s monthlySchedule) Next(t time.Time) time.Time {
	t = t.UTC()
	candidate := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Add(s.offset)
	if !candidate.After(t) {
		candidate = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).Add(s.offset)
	}
	return candidate
}

// MonthlyDepositJob schedules the deposit at 00:05 UTC on the 1st. The
// deposit itself is idempotent per month, so a missed or repeated run is safe.
func MonthlyDepositJob() *river.PeriodicJob {
	return river.NewPeriodicJob(
		monthlySchedule{offset: 5 * time.Minute},
		func() (river.JobArgs, *river.InsertOpts) {
			return MonthlyDepositArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	)
}
