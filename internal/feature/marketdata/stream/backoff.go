package stream

import (
	"context"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
)

// Backoff yields exponentially growing retry delays with additive jitter.
// The base sequence doubles from min up to max; jitter adds up to jitter*base on top,
// and the result never exceeds max. Not safe for concurrent use; each feed owns one.
type Backoff struct {
	base   *backoff.Backoff
	max    time.Duration
	jitter float64
	rand   func() float64
}

// NewBackoff returns a policy starting at min, doubling to max, with jitter in [0, 1).
func NewBackoff(min, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		base:   &backoff.Backoff{Min: min, Max: max, Factor: 2},
		max:    max,
		jitter: jitter,
		rand:   rand.Float64,
	}
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.base.Duration()
	if b.jitter > 0 {
		d += time.Duration(b.rand() * b.jitter * float64(d))
	}
	if d > b.max {
		d = b.max
	}
	return d
}

// Reset restarts the sequence at the initial delay.
func (b *Backoff) Reset() {
	b.base.Reset()
}

// Attempts returns how many delays were handed out since the last reset.
func (b *Backoff) Attempts() int {
	return int(b.base.Attempt())
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
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
