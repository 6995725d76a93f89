package invoker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPoolRunsSingleTask(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	fut := p.Submit(context.Background(), 0, func(ctx context.Context) error { return nil })
	if err := fut.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestPoolPriorityOrdering(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	// Block the single worker so every subsequent Submit queues up
	// before dispatch drains it.
	release := make(chan struct{})
	started := make(chan struct{})
	blocker := p.Submit(context.Background(), 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var mu sync.Mutex
	var order []int

	record := func(n int) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	// Submitted out of priority order; lower priority value must run
	// first once the blocker releases.
	lowFut := p.Submit(context.Background(), 5, record(5))
	highFut := p.Submit(context.Background(), 1, record(1))

	close(release)
	if err := blocker.Wait(context.Background()); err != nil {
		t.Fatalf("blocker.Wait: %v", err)
	}
	if err := highFut.Wait(context.Background()); err != nil {
		t.Fatalf("highFut.Wait: %v", err)
	}
	if err := lowFut.Wait(context.Background()); err != nil {
		t.Fatalf("lowFut.Wait: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != 1 || order[1] != 5 {
		t.Fatalf("execution order = %v, want [1 5]", order)
	}
}

func TestPoolSubmitAfterStopReturnsCancelled(t *testing.T) {
	p := NewPool(1)
	p.Stop()

	fut := p.Submit(context.Background(), 0, func(ctx context.Context) error { return nil })
	if err := fut.Wait(context.Background()); err != context.Canceled {
		t.Fatalf("Wait() = %v, want context.Canceled", err)
	}
}

func TestFutureWaitRespectsCallerContext(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	fut := p.Submit(context.Background(), 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := fut.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Wait(ctx) = %v, want context.DeadlineExceeded", err)
	}
}

func TestPoolLen(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(context.Background(), 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	p.Submit(context.Background(), 0, func(ctx context.Context) error { return nil })
	p.Submit(context.Background(), 0, func(ctx context.Context) error { return nil })

	if got := p.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	close(release)
}
