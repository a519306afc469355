// Package ratelimit throttles calls to an extraction backend.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// DefaultCooldown is how long every caller pauses after the provider
// reports rate limiting.
const DefaultCooldown = 5 * time.Second

// Limiter combines proactive throttling with a reactive pause.
//
// The token bucket spaces requests to the configured rate. When a call comes
// back rate limited, Observe opens a cooldown window during which Wait blocks
// every caller, not just the one that was refused.
type Limiter struct {
	mu         sync.Mutex
	bucket     *rate.Limiter // Nil when unlimited.
	cooldown   time.Duration
	pauseUntil time.Time
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCooldown sets the pause after a rate-limited response.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.cooldown = d
		}
	}
}

// WithClock overrides the clock used for the cooldown window.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter allowing requestsPerMinute calls. Zero or less means
// no proactive limit. The burst is a fifth of the per-minute rate, at least one.
func New(requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	if requestsPerMinute > 0 {
		burst := max(requestsPerMinute/5, 1)
		l.bucket = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a call may be made.
func (l *Limiter) Wait(ctx context.Context) error {
	// 1. Reactive pause after the provider refused a call
	l.mu.Lock()
	pauseUntil := l.pauseUntil
	l.mu.Unlock()

	if wait := pauseUntil.Sub(l.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	// 2. Token bucket
	if l.bucket == nil {
		return ctx.Err()
	}
	return l.bucket.Wait(ctx)
}

// Observe inspects a call result and opens the cooldown window on rate limiting.
func (l *Limiter) Observe(err error) {
	kind, ok := domain.BackendErrorKindOf(err)
	if !ok || kind != domain.BackendRateLimited || l.cooldown == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(l.cooldown); until.After(l.pauseUntil) {
		l.pauseUntil = until
	}
}

// Paused reports whether the cooldown window is open.
func (l *Limiter) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.pauseUntil)
}
