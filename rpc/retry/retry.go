package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ValentinKolb/dTuple/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

const (
	DefaultBaseBackoff = 50 * time.Millisecond
	DefaultMaxBackoff  = 2 * time.Second
)

// IRetryPolicy decides whether and when a failed request is tried again
type IRetryPolicy interface {
	// Attempts returns the maximum number of attempts, at least 1
	Attempts() int
	// Backoff returns the pause after the given failed attempt (starting at 0)
	Backoff(attempt int) time.Duration
	// ShouldRetry reports whether err may be retried
	ShouldRetry(err error) bool
}

type exponentialPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

// NewExponentialPolicy doubles the backoff after every attempt, starting at
// base and capped at max, with a random jitter of +-10%. Only errors
// classified by common.IsRetryable are retried.
func NewExponentialPolicy(attempts int, base, max time.Duration) IRetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if max < base {
		max = base
	}
	return &exponentialPolicy{attempts: attempts, base: base, max: max}
}

// NoRetry tries exactly once
func NoRetry() IRetryPolicy {
	return NewExponentialPolicy(1, DefaultBaseBackoff, DefaultBaseBackoff)
}

func (p *exponentialPolicy) Attempts() int {
	return p.attempts
}

func (p *exponentialPolicy) Backoff(attempt int) time.Duration {
	backoff := p.base
	for i := 0; i < attempt && backoff < p.max; i++ {
		backoff *= 2
	}
	if backoff > p.max {
		backoff = p.max
	}
	// small random jitter (+-10%)
	jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
	return time.Duration(jitter)
}

func (p *exponentialPolicy) ShouldRetry(err error) bool {
	return common.IsRetryable(err)
}

// Do calls fn until it succeeds, the policy gives up or ctx is done. The
// attempt number starts at 0.
func Do(ctx context.Context, policy IRetryPolicy, fn func(attempt int) error) error {
	attempts := policy.Attempts()

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(i)
		if err == nil {
			return nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, attempts, err)

		timer := time.NewTimer(policy.Backoff(i))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
