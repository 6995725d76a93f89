package rpcserver

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle bounds egress bandwidth and flags read responses as
// throttled once pending I/O exceeds configured limits (spec §4.8:
// "set a throttling flag in the response when bus-pending-out or
// disk-read-pending exceed configured limits").
type Throttle struct {
	egress              *rate.Limiter
	busPendingOutLimit  int64
	diskReadPendingLimit int64
}

// NewThrottle constructs a Throttle. egressBytesPerSec <= 0 disables
// rate limiting (unlimited burst).
func NewThrottle(egressBytesPerSec, burstBytes int, busPendingOutLimit, diskReadPendingLimit int64) *Throttle {
	limiter := rate.NewLimiter(rate.Inf, burstBytes)
	if egressBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(egressBytesPerSec), burstBytes)
	}
	return &Throttle{egress: limiter, busPendingOutLimit: busPendingOutLimit, diskReadPendingLimit: diskReadPendingLimit}
}

// ShouldThrottle reports whether a read response should carry the
// throttling flag, given current bus-pending-out and disk-read-pending
// counters.
func (t *Throttle) ShouldThrottle(busPendingOut, diskReadPending int64) bool {
	if t.busPendingOutLimit > 0 && busPendingOut > t.busPendingOutLimit {
		return true
	}
	if t.diskReadPendingLimit > 0 && diskReadPending > t.diskReadPendingLimit {
		return true
	}
	return false
}

// WaitEgress blocks until n bytes of egress bandwidth are available
// (spec §4.8 "apply an egress throughput throttler sized by the
// returned payload").
func (t *Throttle) WaitEgress(ctx context.Context, n int) error {
	// WaitN rejects a request larger than the burst outright, so a payload
	// above the burst is waited for one burst at a time.
	for n > 0 {
		step := n
		if b := t.egress.Burst(); t.egress.Limit() != rate.Inf && b > 0 && step > b {
			step = b
		}
		if err := t.egress.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
