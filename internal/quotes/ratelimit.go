package quotes

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantrail/optionsfeed/internal/observ"
)

// Limiter is a token-bucket admission gate with a sticky cooldown. The
// bucket itself is golang.org/x/time/rate (capacity = burst, refill = qps);
// the cooldown layer tracks consecutive upstream rate-limit rejections and,
// once the threshold is hit, holds all admissions until it elapses.
type Limiter struct {
	bucket *rate.Limiter

	mu            sync.Mutex
	consecutive   int
	threshold     int
	cooldown      time.Duration
	cooldownUntil time.Time
}

// NewLimiter creates a limiter sustaining qps requests/sec with the given
// burst capacity. Zero or negative inputs fall back to the defaults the
// upstream API tolerates (3 rps, 2x burst, 5 failures, 20s cooldown).
func NewLimiter(qps float64, burst, threshold int, cooldown time.Duration) *Limiter {
	if qps <= 0 {
		qps = 3
	}
	if burst <= 0 {
		burst = int(2 * qps)
	}
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 20 * time.Second
	}
	return &Limiter{
		bucket:    rate.NewLimiter(rate.Limit(qps), burst),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Acquire blocks until tokens are available, or fails fast with a
// rate-limited error when fastFail is set and a cooldown is active.
// Cancellation is honored at every suspension point.
func (l *Limiter) Acquire(ctx context.Context, tokens int, fastFail bool) error {
	if tokens <= 0 {
		tokens = 1
	}

	l.mu.Lock()
	wait := time.Until(l.cooldownUntil)
	l.mu.Unlock()

	if wait > 0 {
		if fastFail {
			return newRateLimitedError("cooldown active")
		}
		observ.IncCounter("limiter_cooldown_waits_total", nil)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := l.bucket.WaitN(ctx, tokens); err != nil {
		return newRateLimitedError("token wait aborted: " + err.Error())
	}
	return nil
}

// RecordRateLimitError counts a consecutive upstream rejection; at the
// threshold the cooldown window opens (sticky until it elapses).
func (l *Limiter) RecordRateLimitError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutive++
	if l.consecutive >= l.threshold && time.Now().After(l.cooldownUntil) {
		l.cooldownUntil = time.Now().Add(l.cooldown)
		observ.Log("limiter_cooldown_started", map[string]any{
			"consecutive_failures": l.consecutive,
			"cooldown_seconds":     l.cooldown.Seconds(),
		})
		observ.IncCounter("limiter_cooldowns_total", nil)
	}
}

// RecordSuccess resets the consecutive-failure counter. An elapsed cooldown
// is cleared; an active one is never truncated early.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutive = 0
	if !l.cooldownUntil.IsZero() && time.Now().After(l.cooldownUntil) {
		l.cooldownUntil = time.Time{}
	}
}

// CooldownActive reports whether admissions are currently held.
func (l *Limiter) CooldownActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Now().Before(l.cooldownUntil)
}
