package engine

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// backoffState produces the sleep intervals between retry attempts:
// exponential doubling from one second, capped, and clipped so a sleep
// never runs past the call deadline.
type backoffState struct {
	exp      *backoff.ExponentialBackOff
	deadline time.Time
	now      func() time.Time
}

func newBackoffState(cap time.Duration, deadline time.Time) *backoffState {
	initial := time.Second
	if cap < initial {
		initial = cap
	}
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cap,
	}
	exp.Reset()
	return &backoffState{
		exp:      exp,
		deadline: deadline,
		now:      time.Now,
	}
}

// Next returns the next sleep interval. The second return is false when the
// deadline has already passed and no further attempt should be made.
func (b *backoffState) Next() (time.Duration, bool) {
	d := b.exp.NextBackOff()
	if b.deadline.IsZero() {
		return d, true
	}
	remaining := b.deadline.Sub(b.now())
	if remaining <= 0 {
		return 0, false
	}
	if d > remaining {
		d = remaining
	}
	return d, true
}
