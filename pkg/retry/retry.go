// Package retry implements the backoff policy for API attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

// maxRetriesBound rejects runaway policies at construction time.
const maxRetriesBound = 20

// Policy is an immutable retry configuration. Validate it once at
// construction; Next is then safe for concurrent use.
type Policy struct {
	// MaxRetries is the number of retry attempts, not counting the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay, pre- and post-jitter.
	MaxDelay time.Duration
	// ExponentialBackoff doubles the delay on each retry when set.
	ExponentialBackoff bool
	// JitterFactor perturbs the delay by a uniform factor in [-j, +j].
	JitterFactor float64

	// Rand supplies uniform values in [0,1) for jitter. Nil means math/rand.
	Rand func() float64
}

// Default returns the stock policy: 3 retries, 1s base, 10s cap,
// exponential backoff with 10% jitter.
func Default() Policy {
	return Policy{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		MaxDelay:           10 * time.Second,
		ExponentialBackoff: true,
		JitterFactor:       0.1,
	}
}

// Validate rejects out-of-range policies rather than clamping them.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 || p.MaxRetries > maxRetriesBound {
		return apierror.New(apierror.KindConfiguration, "max_retries must be in [0, %d], got %d", maxRetriesBound, p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return apierror.New(apierror.KindConfiguration, "base_delay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return apierror.New(apierror.KindConfiguration, "max_delay (%v) must be >= base_delay (%v)", p.MaxDelay, p.BaseDelay)
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return apierror.New(apierror.KindConfiguration, "jitter_factor must be in [0, 1], got %v", p.JitterFactor)
	}
	return nil
}

// Next decides what to do after a failed attempt. attempt is 1-based:
// attempt 1 is the initial call. It returns the wait before the next
// attempt and whether a retry should happen at all.
func (p Policy) Next(attempt int, err error) (time.Duration, bool) {
	if attempt > p.MaxRetries {
		return 0, false
	}
	if !apierror.Retryable(err) {
		return 0, false
	}
	return p.delay(attempt), true
}

// delay computes min(MaxDelay, BaseDelay * 2^(attempt-1)) with jitter,
// clamped to [0, MaxDelay].
func (p Policy) delay(attempt int) time.Duration {
	wait := float64(p.BaseDelay)
	if p.ExponentialBackoff {
		wait *= math.Pow(2, float64(attempt-1))
	}
	if wait > float64(p.MaxDelay) {
		wait = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		// Uniform in [-JitterFactor, +JitterFactor].
		wait *= 1 + p.JitterFactor*(2*r()-1)
	}

	if wait < 0 {
		wait = 0
	}
	if wait > float64(p.MaxDelay) {
		wait = float64(p.MaxDelay)
	}
	return time.Duration(wait)
}

// Wait blocks for d or until ctx is cancelled, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
