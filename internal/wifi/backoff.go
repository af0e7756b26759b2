package wifi

import (
	"math/rand"
	"time"
)

// Default backoff parameters.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxBackoff   = 60 * time.Second
	DefaultMultiplier   = 2
	DefaultJitterMax    = 500 * time.Millisecond

	// maxExponent bounds the repeated multiplication so huge attempt
	// counts cannot overflow. MaxBackoff is hit long before this matters
	// for any realistic configuration.
	maxExponent = 20
)

// Backoff computes retry delays as a pure function of the attempt count:
// min(Initial × Multiplier^attempt, Max), plus a uniformly random jitter in
// [0, JitterMax). The jitter keeps a fleet of gateways recovering from the
// same outage from hammering the access point in lockstep.
type Backoff struct {
	Initial    time.Duration
	Multiplier int
	Max        time.Duration
	JitterMax  time.Duration
}

// DefaultBackoff returns the firmware-default policy (1s, x2, 60s cap,
// 500ms jitter).
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    DefaultInitialDelay,
		Multiplier: DefaultMultiplier,
		Max:        DefaultMaxBackoff,
		JitterMax:  DefaultJitterMax,
	}
}

// Base returns the pre-jitter delay for the given attempt count.
func (b Backoff) Base(attempt int) time.Duration {
	delay := b.Initial
	for i := 0; i < attempt && i < maxExponent; i++ {
		delay *= time.Duration(b.Multiplier)
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Next returns the full delay for the given attempt count, jitter included.
func (b Backoff) Next(attempt int) time.Duration {
	return b.Base(attempt) + b.jitter()
}

func (b Backoff) jitter() time.Duration {
	if b.JitterMax <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(b.JitterMax)))
}
