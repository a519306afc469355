// Package retry runs operations with exponential backoff.
//
// Whether a failure is retried is a property of the error value: the
// Config's Retryable function decides, and by default only backend errors
// whose kind is rate-limited, timeout or transient-server are retried.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// Config configures retry behaviour with exponential backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	// Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries before jitter.
	// Default: 30s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffFactor float64

	// JitterFactor adds up to this fraction of the delay at random.
	// Default: 0.2
	JitterFactor float64

	// Retryable decides whether an error is worth another attempt.
	// Default: domain.IsTransientBackend
	Retryable func(error) bool

	// Observer is told about every scheduled retry. Optional.
	Observer func(attempt int, delay time.Duration, err error)

	// Sleep waits for d or until ctx is done. Default: a timer select.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand returns a value in [0, 1). Default: math/rand/v2.
	Rand func() float64
}

// DefaultConfig returns sensible defaults for backend calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// FromSettings builds a Config from the retry section of the settings.
func FromSettings(s domain.RetrySettings) Config {
	return Config{
		MaxAttempts:    s.MaxAttempts,
		InitialBackoff: s.InitialBackoff,
		MaxBackoff:     s.MaxBackoff,
		BackoffFactor:  s.BackoffFactor,
		JitterFactor:   s.Jitter,
	}
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid retry config")

// Validate checks if the retry configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return ErrInvalidConfig
	case c.InitialBackoff <= 0:
		return ErrInvalidConfig
	case c.MaxBackoff < c.InitialBackoff:
		return ErrInvalidConfig
	case c.BackoffFactor < 1.0:
		return ErrInvalidConfig
	case c.JitterFactor < 0 || c.JitterFactor > 1:
		return ErrInvalidConfig
	}
	return nil
}

// Result contains the outcome of a retried operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int

	// Delays are the waits before each retry, in order.
	Delays []time.Duration
}

// Do executes op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. On exhaustion the last error is returned as is.
// If ctx ends while waiting, ctx.Err() is returned joined with the last error.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) (T, error)) (T, Result, error) {
	var zero T
	cfg = cfg.withDefaults()
	res := Result{}
	delay := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return zero, res, err
		}

		v, err := op(ctx, attempt)
		if err == nil {
			return v, res, nil
		}

		if !cfg.Retryable(err) || attempt == cfg.MaxAttempts {
			return zero, res, err
		}

		wait := withJitter(delay, cfg.JitterFactor, cfg.Rand)
		res.Delays = append(res.Delays, wait)
		if cfg.Observer != nil {
			cfg.Observer(attempt, wait, err)
		}
		if serr := cfg.Sleep(ctx, wait); serr != nil {
			return zero, res, errors.Join(serr, err)
		}

		delay = nextBackoff(delay, cfg.BackoffFactor, cfg.MaxBackoff)
	}

	// unreachable: the loop always returns on the last attempt
	return zero, res, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.Retryable == nil {
		c.Retryable = domain.IsTransientBackend
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withJitter stretches base by up to jitterFactor.
func withJitter(base time.Duration, jitterFactor float64, rnd func() float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	return time.Duration(float64(base) * (1 + jitterFactor*rnd()))
}

func nextBackoff(current time.Duration, factor float64, limit time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > limit {
		return limit
	}
	return next
}
