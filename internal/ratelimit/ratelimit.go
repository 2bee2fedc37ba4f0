package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter paces page requests against the target site.
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitterRateLimiter enforces a randomized delay between consecutive
// actions. Randomizing inside [minDelay, maxDelay] avoids a fixed
// request cadence that category pages are quick to throttle.
type JitterRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewJitterRateLimiter(minDelay, maxDelay time.Duration) *JitterRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (r *JitterRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.nextDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *JitterRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
	if r.maxDelay < r.minDelay {
		r.maxDelay = r.minDelay
	}
}

func (r *JitterRateLimiter) nextDelay() time.Duration {
	if r.minDelay >= r.maxDelay {
		return r.minDelay
	}
	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// BackoffRateLimiter stretches the delay window after repeated page
// failures and slowly relaxes it again after sustained success.
type BackoffRateLimiter struct {
	*JitterRateLimiter
	errorCount     int
	successCount   int
	errorThreshold int
	backoffFactor  float64
	floor          time.Duration
	ceiling        time.Duration
}

func NewBackoffRateLimiter(minDelay, maxDelay time.Duration) *BackoffRateLimiter {
	return &BackoffRateLimiter{
		JitterRateLimiter: NewJitterRateLimiter(minDelay, maxDelay),
		errorThreshold:    3,
		backoffFactor:     1.5,
		floor:             minDelay,
		ceiling:           2 * time.Minute,
	}
}

func (b *BackoffRateLimiter) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	b.errorCount = 0

	if b.successCount > 5 {
		relaxed := time.Duration(float64(b.minDelay) * 0.9)
		if relaxed < b.floor {
			relaxed = b.floor
		}
		b.minDelay = relaxed
		b.successCount = 0
	}
}

func (b *BackoffRateLimiter) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errorCount++
	b.successCount = 0

	if b.errorCount >= b.errorThreshold {
		b.minDelay = capDuration(time.Duration(float64(b.minDelay)*b.backoffFactor), b.ceiling)
		b.maxDelay = capDuration(time.Duration(float64(b.maxDelay)*b.backoffFactor), b.ceiling)
		b.errorCount = 0
	}
}

func capDuration(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
