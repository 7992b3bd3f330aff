package chat

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBackoffCap bounds ExponentialBackoff when Max is not set.
const DefaultBackoffCap = time.Minute

// BackoffPolicy returns how long to wait before reconnect attempt n (n >= 1).
type BackoffPolicy interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(int) time.Duration {
	return backoff.NewConstantBackOff(b.Delay).NextBackOff()
}

// ExponentialBackoff doubles the delay per attempt up to Max. A zero Max
// means DefaultBackoffCap.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultBackoffCap
	}
	initial := b.Initial
	if initial <= 0 {
		initial = backoff.DefaultInitialInterval
	}
	if initial > limit {
		initial = limit
	}

	eb := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         limit,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()

	d := eb.NextBackOff()
	for i := 1; i < attempt && d < limit; i++ {
		d = eb.NextBackOff()
	}
	return d
}
