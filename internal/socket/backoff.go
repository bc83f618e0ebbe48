package socket

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays with exponential growth and jitter
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0.25 means ±25%

	attempt int
}

// Next returns the delay before the next attempt and advances the counter
func (b *Backoff) Next() time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 500 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}

	delay := float64(lo)
	for i := 0; i < b.attempt && delay < float64(hi); i++ {
		delay *= factor
	}
	if delay > float64(hi) {
		delay = float64(hi)
	}
	b.attempt++

	if b.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * b.Jitter * delay
		if delay < float64(lo) {
			delay = float64(lo)
		}
		if delay > float64(hi) {
			delay = float64(hi)
		}
	}
	return time.Duration(delay)
}

// Reset restarts the sequence after a successful connection
func (b *Backoff) Reset() {
	b.attempt = 0
}
