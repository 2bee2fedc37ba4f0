package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterRateLimiterEnforcesDelay(t *testing.T) {
	limiter := NewJitterRateLimiter(30*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, limiter.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestJitterRateLimiterRespectsContext(t *testing.T) {
	limiter := NewJitterRateLimiter(5*time.Second, 5*time.Second)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJitterRateLimiterDelayWithinWindow(t *testing.T) {
	limiter := NewJitterRateLimiter(10*time.Millisecond, 50*time.Millisecond)

	for i := 0; i < 20; i++ {
		d := limiter.nextDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 50*time.Millisecond)
	}
}

func TestBackoffRateLimiterStretchesAfterErrors(t *testing.T) {
	limiter := NewBackoffRateLimiter(100*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}

	assert.Equal(t, 150*time.Millisecond, limiter.minDelay)
	assert.Equal(t, 300*time.Millisecond, limiter.maxDelay)
}

func TestBackoffRateLimiterRelaxesAfterSuccess(t *testing.T) {
	limiter := NewBackoffRateLimiter(100*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}
	require.Equal(t, 150*time.Millisecond, limiter.minDelay)

	for i := 0; i < 6; i++ {
		limiter.RecordSuccess()
	}

	assert.Equal(t, 135*time.Millisecond, limiter.minDelay)
}

func TestBackoffRateLimiterNeverBelowFloor(t *testing.T) {
	limiter := NewBackoffRateLimiter(100*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 30; i++ {
		limiter.RecordSuccess()
	}

	assert.GreaterOrEqual(t, limiter.minDelay, 100*time.Millisecond)
}
