package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker("firecrawl", BreakerConfig{FailureThreshold: threshold, ResetTimeout: 10 * time.Second})
	b.now = clock.now
	return b, clock
}

func fail(ctx context.Context, b *Breaker) error {
	_, err := Guard(ctx, b, func(context.Context) (int, error) {
		return 0, NewTransientError(errors.New("503"), 503)
	})
	return err
}

func succeed(ctx context.Context, b *Breaker) error {
	_, err := Guard(ctx, b, func(context.Context) (int, error) { return 1, nil })
	return err
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		require.Error(t, fail(ctx, b))
	}
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	_, err := Guard(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(3)

	require.Error(t, fail(ctx, b))
	require.Error(t, fail(ctx, b))
	require.NoError(t, succeed(ctx, b))
	require.Error(t, fail(ctx, b))
	require.Error(t, fail(ctx, b))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(2)

	for i := 0; i < 5; i++ {
		_, err := Guard(ctx, b, func(context.Context) (int, error) {
			return 0, errors.New("not found")
		})
		require.Error(t, err)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(1)

	require.Error(t, fail(ctx, b))
	assert.Equal(t, BreakerOpen, b.State())

	clock.advance(10 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// A failed probe reopens.
	require.Error(t, fail(ctx, b))
	assert.Equal(t, BreakerOpen, b.State())

	clock.advance(10 * time.Second)
	require.NoError(t, succeed(ctx, b))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestFromBreakerConfig(t *testing.T) {
	cfg := FromBreakerConfig(7, 60)
	assert.Equal(t, 7, cfg.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.ResetTimeout)

	def := FromBreakerConfig(0, 0)
	assert.Equal(t, DefaultBreakerConfig().FailureThreshold, def.FailureThreshold)
}
