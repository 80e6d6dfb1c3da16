package websocket

import (
	"context"
	"math/rand"
	"time"
)

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// FixedBackoff waits delay before every attempt.
func FixedBackoff(delay time.Duration) Backoff {
	return Backoff{Min: delay, Max: delay, Factor: 1}
}

// Next returns the next backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max < min {
		max = min
	}

	wait := min
	if b.Factor > 1 {
		for i := 1; i < attempt; i++ {
			next := time.Duration(float64(wait) * b.Factor)
			if next > max {
				wait = max
				break
			}
			wait = next
		}
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// sleep waits for the attempt's delay or until ctx is done.
func (b Backoff) sleep(ctx context.Context, attempt int) {
	timer := time.NewTimer(b.Next(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
