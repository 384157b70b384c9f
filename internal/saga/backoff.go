package saga

import (
	"math"
	"time"
)

// Backoff spaces out resume attempts of a partial run
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Next returns the delay after the given failed attempt (1-indexed)
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := time.Duration(float64(b.Initial) * math.Pow(mult, float64(attempt-1)))
	if b.Max > 0 && (d > b.Max || d < 0) {
		d = b.Max
	}
	return d
}
