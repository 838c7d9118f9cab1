package transport

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket, grounded on the teacher's rest.RateLimiter:
// the subscribe/unsubscribe/patch protocol has no notion of its own pacing,
// so whatever pacing the backend expects is enforced here, once, for every
// subscription sharing an HTTPTransport.
type RateLimiter struct {
	rate  float64
	burst int

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter returns a limiter allowing requestsPerSecond steady-state,
// with burst as the maximum instantaneous token balance.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:   requestsPerSecond,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// TryAcquire takes one token without blocking, reporting whether one was
// available.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillTokens()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rl.TryAcquire() {
		return nil
	}
	if rl.rate <= 0 {
		return context.DeadlineExceeded
	}

	rl.mu.Lock()
	waitTime := time.Duration((1.0 / rl.rate) * float64(time.Second))
	rl.mu.Unlock()

	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		if rl.TryAcquire() {
			return nil
		}
		return rl.Wait(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refillTokens must be called with mu held.
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.last).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.last = now
}
