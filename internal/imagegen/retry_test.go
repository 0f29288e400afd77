package imagegen

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator returns the scripted errors in order, then succeeds.
type scriptedGenerator struct {
	errs  []error
	calls int
}

func (s *scriptedGenerator) Generate(context.Context, Request) (*Image, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &Image{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func upstream(status int) error {
	return &UpstreamError{Status: status, Err: errors.New(http.StatusText(status))}
}

func newRetrying(g Generator) (*Retrying, *[]time.Duration) {
	var waits []time.Duration
	r := WithRetry(g, 3, 2*time.Second, nil)
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetrying_RateLimitedTwiceThenSucceeds(t *testing.T) {
	g := &scriptedGenerator{errs: []error{upstream(429), upstream(429)}}
	r, waits := newRetrying(g)

	img, err := r.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, 3, g.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestRetrying_BadRequestIsNotRetried(t *testing.T) {
	g := &scriptedGenerator{errs: []error{upstream(400)}}
	r, waits := newRetrying(g)

	_, err := r.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Equal(t, 1, g.calls)
	assert.Empty(t, *waits)
}

func TestRetrying_ServerErrorsExhaustAttempts(t *testing.T) {
	g := &scriptedGenerator{errs: []error{upstream(503), upstream(500), upstream(429)}}
	r, _ := newRetrying(g)

	_, err := r.Generate(context.Background(), Request{})
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(err))
	assert.Equal(t, 3, g.calls)
}

func TestRetrying_NoImageIsNotRetried(t *testing.T) {
	g := &scriptedGenerator{errs: []error{ErrNoImage}}
	r, _ := newRetrying(g)

	_, err := r.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, 1, g.calls)
}

func TestRetrying_CancelledWhileWaiting(t *testing.T) {
	g := &scriptedGenerator{errs: []error{upstream(429)}}
	r := WithRetry(g, 3, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, g.calls)
}
