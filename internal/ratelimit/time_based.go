package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dlqrecover/pipeline/internal/utils"
)

// TimeBasedRateLimiter enforces a minimum time interval between operations
// per key — used to keep the Analyzer's outbound Anthropic calls under the
// account's requests-per-second quota without a token-bucket's burst
// allowance.
//
// Thread-safe via internal mutex.
type TimeBasedRateLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewTimeBasedRateLimiter creates a new interval-based rate limiter
func NewTimeBasedRateLimiter() *TimeBasedRateLimiter {
	return &TimeBasedRateLimiter{
		last: make(map[string]time.Time),
	}
}

// Wait blocks until the minimum interval has passed since the last operation for the key.
// If minInterval <= 0, returns immediately (no rate limiting).
// Returns error if context is cancelled while waiting.
func (l *TimeBasedRateLimiter) Wait(ctx context.Context, key string, minInterval time.Duration) error {
	if minInterval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := utils.NowUTC()
	last := l.last[key]
	waitFor := minInterval - now.Sub(last)
	if waitFor <= 0 {
		l.last[key] = now
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	timer := time.NewTimer(waitFor)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.mu.Lock()
		l.last[key] = utils.NowUTC()
		l.mu.Unlock()
		return nil
	}
}

// Reset clears the tracking for a specific key
func (l *TimeBasedRateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, key)
}

// ResetAll clears all tracking
func (l *TimeBasedRateLimiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = make(map[string]time.Time)
}
