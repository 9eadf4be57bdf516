// ABOUTME: Explicit retry policy for the periodic refresh timers
// ABOUTME: Constant keeps the fixed poll interval; exponential backs off on repeated failure

package chatsync

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry strategies accepted by RetryConfig.
const (
	RetryConstant    = "constant"
	RetryExponential = "exponential"
)

// RetryConfig selects how a refresh timer reacts to failures.
type RetryConfig struct {
	Strategy    string
	MaxInterval time.Duration
}

// RetryPolicy yields the delay before the next refresh of one timer.
type RetryPolicy struct {
	interval time.Duration
	backoff  backoff.BackOff
}

// NewRetryPolicy builds a policy for a timer that normally fires every
// interval. An empty strategy means constant.
func NewRetryPolicy(interval time.Duration, cfg RetryConfig) (*RetryPolicy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("retry interval must be positive, got %s", interval)
	}

	switch cfg.Strategy {
	case "", RetryConstant:
		return &RetryPolicy{
			interval: interval,
			backoff:  backoff.NewConstantBackOff(interval),
		}, nil
	case RetryExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = interval
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.MaxInterval = cfg.MaxInterval
		if b.MaxInterval < interval {
			b.MaxInterval = interval
		}
		b.Reset()
		return &RetryPolicy{interval: interval, backoff: b}, nil
	default:
		return nil, fmt.Errorf("unknown retry strategy %q", cfg.Strategy)
	}
}

// Next returns the delay before the next refresh given the outcome of the
// previous one. Success resets any accumulated backoff.
func (p *RetryPolicy) Next(err error) time.Duration {
	if err == nil {
		p.backoff.Reset()
		return p.interval
	}
	d := p.backoff.NextBackOff()
	if d == backoff.Stop {
		return p.interval
	}
	return d
}

// Reset forgets accumulated failures.
func (p *RetryPolicy) Reset() {
	p.backoff.Reset()
}
