package imagegen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var imageRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "image_retries_total",
	Help: "Image model calls retried after a 429 or 5xx.",
})

// Retrying retries rate-limited and server-side failures of the wrapped
// generator, waiting attempt × BaseDelay between attempts. Other failures
// return immediately.
type Retrying struct {
	next      Generator
	attempts  int
	baseDelay time.Duration
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func WithRetry(next Generator, attempts int, baseDelay time.Duration, log *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{next: next, attempts: attempts, baseDelay: baseDelay, log: log, sleep: sleepCtx}
}

var _ Generator = (*Retrying)(nil)

func (r *Retrying) Generate(ctx context.Context, req Request) (*Image, error) {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		var img *Image
		img, err = r.next.Generate(ctx, req)
		if err == nil {
			return img, nil
		}
		var up *UpstreamError
		if !errors.As(err, &up) || !up.Retryable() || attempt == r.attempts {
			return nil, err
		}
		imageRetriesTotal.Inc()
		r.log.Warn("image generation failed, retrying", "attempt", attempt, "status", up.Status)
		if serr := r.sleep(ctx, time.Duration(attempt)*r.baseDelay); serr != nil {
			return nil, serr
		}
	}
	return nil, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
