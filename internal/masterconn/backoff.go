package masterconn

import "time"

// Backoff is the registration retry schedule: it grows by Multiplier on
// each failure up to Max, and resets to Start on success (spec §4.7
// re-registration after registerRetryPeriod). Failed heartbeats are not
// backed off; the next scheduled heartbeat tick is the retry.
type Backoff struct {
	Start      time.Duration
	Multiplier float64
	Max        time.Duration

	current time.Duration
}

// Next returns the delay to wait before the next attempt and advances
// the backoff state.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Start
	}
	delay := b.current
	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	b.current = next
	return delay
}

// Reset returns the backoff to its initial state after a success.
func (b *Backoff) Reset() {
	b.current = 0
}
