package agent

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBaseDelay = 3 * time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Backoff is the single reconnect delay policy:
// min(Base * 2^(n-1), Max), spread by up to Jitter in either direction.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// Clock defaults to the agent's clock.
	Clock backoff.Clock
}

func (b Backoff) policy() *backoff.ExponentialBackOff {
	base, max := b.Base, b.Max
	if base <= 0 {
		base = defaultBaseDelay
	}
	if max <= 0 {
		max = defaultMaxDelay
	}
	opts := []backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(base),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(max),
		backoff.WithRandomizationFactor(b.Jitter),
		backoff.WithMaxElapsedTime(0),
	}
	if b.Clock != nil {
		opts = append(opts, backoff.WithClockProvider(b.Clock))
	}
	return backoff.NewExponentialBackOff(opts...)
}

// Delay returns the wait before reconnect attempt n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	p := b.policy()
	d := p.NextBackOff()
	for i := 1; i < n; i++ {
		d = p.NextBackOff()
	}
	return d
}
