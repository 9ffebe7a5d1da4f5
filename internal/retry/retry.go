// Package retry runs an operation with exponential backoff and jitter.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy controls how failed calls are retried.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter adds a uniform random delay in [0, Jitter) to each backoff.
	Jitter time.Duration
	// Retryable classifies errors. A nil Retryable retries every error.
	Retryable func(error) bool
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 attempts with a 1.5s initial delay doubling up to
// 30s and up to 600ms of jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       600 * time.Millisecond,
	}
}

// ShouldRetry reports whether err is retryable and attempts remain after
// attempt (1-indexed).
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// NextDelay returns the backoff before attempt+1: InitialDelay *
// Multiplier^(attempt-1), capped at MaxDelay, plus jitter.
func (p *Policy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	d := time.Duration(delay)
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	return d
}

// Execute runs fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. It returns the last error from fn, or the context
// error if ctx ends while waiting.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		if err := sleep(ctx, p.NextDelay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
