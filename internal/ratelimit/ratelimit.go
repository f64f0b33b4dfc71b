// Package ratelimit throttles calls to the study generation model with a
// token bucket plus an explicit backoff window after 429 responses.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequests per DefaultPeriod is the stock AI call budget.
	DefaultRequests = 5
	DefaultPeriod   = time.Minute
	// DefaultBackoff applies when a 429 carries no usable Retry-After.
	DefaultBackoff = 60 * time.Second
)

// Limiter is a token bucket with a backoff window. It is safe for
// concurrent use; callers share one instance rather than a package global.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// New allows requests calls per period, with a burst of requests.
// Non-positive arguments fall back to the defaults.
func New(requests int, per time.Duration) *Limiter {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if per <= 0 {
		per = DefaultPeriod
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(per/time.Duration(requests)), requests),
	}
}

// PerMinute is New(n, time.Minute).
func PerMinute(n int) *Limiter {
	return New(n, time.Minute)
}

// Wait blocks until a call may proceed: first through any backoff window,
// then for a bucket token.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed now, consuming a token if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return l.limiter.Allow()
}

// Backoff blocks all calls for d. A later deadline already in place is kept.
// Non-positive d means DefaultBackoff.
func (l *Limiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultBackoff
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.retryAt) {
		l.retryAt = until
	}
}

// RetryAt returns the end of the current backoff window, zero if none was
// ever set.
func (l *Limiter) RetryAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryAt
}
