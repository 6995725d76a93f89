package rpcserver

import (
	"context"
	"testing"
)

func TestShouldThrottleOnDiskReadPending(t *testing.T) {
	th := NewThrottle(0, 0, 100, 50)

	if th.ShouldThrottle(0, 10) {
		t.Fatalf("expected no throttle below limits")
	}
	if !th.ShouldThrottle(0, 60) {
		t.Fatalf("expected throttle once disk-read-pending exceeds limit")
	}
}

func TestShouldThrottleOnBusPendingOut(t *testing.T) {
	th := NewThrottle(0, 0, 100, 0)

	if !th.ShouldThrottle(150, 0) {
		t.Fatalf("expected throttle once bus-pending-out exceeds limit")
	}
}

func TestWaitEgressUnlimitedByDefault(t *testing.T) {
	th := NewThrottle(0, 1<<20, 0, 0)
	if err := th.WaitEgress(context.Background(), 1<<20); err != nil {
		t.Fatalf("WaitEgress: %v", err)
	}
}
