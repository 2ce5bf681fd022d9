package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds EXECUTING retries.
type RetryPolicy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // 0.0 to 1.0
	Multiplier   float64
}

// DefaultRetryPolicy allows two retries after the first attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.2,
		Multiplier:   2.0,
	}
}

// Attempts is the total number of tries allowed.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay computes the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		jitter := delay * p.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitter //nolint:gosec // jitter does not need crypto randomness
	}
	return time.Duration(delay)
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
