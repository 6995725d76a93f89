package chunkregistry

import (
	"context"
	"errors"
	"testing"
	"time"

	"datanode/internal/chunkid"
)

func testID() chunkid.ID { return chunkid.New(chunkid.Blob, 0) }

func TestChunkMetaVersionBump(t *testing.T) {
	c := NewChunk(testID(), "loc-1", nil)
	if c.Meta() != nil {
		t.Fatal("fresh chunk should have nil meta")
	}
	if c.Version() != 0 {
		t.Fatalf("Version() = %d, want 0", c.Version())
	}

	c.SetMeta(&Meta{RowCount: 10})
	if c.Version() != 1 {
		t.Fatalf("Version() after SetMeta = %d, want 1", c.Version())
	}
	if c.Meta().RowCount != 10 {
		t.Fatalf("Meta().RowCount = %d, want 10", c.Meta().RowCount)
	}

	c.SetMeta(&Meta{RowCount: 20})
	if c.Version() != 2 {
		t.Fatalf("Version() after second SetMeta = %d, want 2", c.Version())
	}
}

func TestReadLockLifecycle(t *testing.T) {
	c := NewChunk(testID(), "loc-1", nil)

	if !c.TryAcquireReadLock() {
		t.Fatal("expected TryAcquireReadLock to succeed on Live chunk")
	}
	if c.State() != Live {
		t.Fatalf("State() = %v, want Live", c.State())
	}
	c.ReleaseReadLock()
}

func TestScheduleRemoveWaitsForReadLocksToDrain(t *testing.T) {
	removed := make(chan chunkid.ID, 1)
	remover := func(ctx context.Context, id chunkid.ID) error {
		removed <- id
		return nil
	}
	c := NewChunk(testID(), "loc-1", remover)

	if !c.TryAcquireReadLock() {
		t.Fatal("acquire read lock")
	}

	done := c.ScheduleRemove()
	if c.State() != RemovePending {
		t.Fatalf("State() = %v, want RemovePending while lock held", c.State())
	}

	// A new read lock must be refused once removal is pending.
	if c.TryAcquireReadLock() {
		t.Fatal("expected TryAcquireReadLock to fail once RemovePending")
	}

	c.ReleaseReadLock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("removal did not complete after lock drained")
	}
	if c.State() != Removed {
		t.Fatalf("State() = %v, want Removed", c.State())
	}
	select {
	case got := <-removed:
		if got != c.ID {
			t.Fatalf("remover invoked with %v, want %v", got, c.ID)
		}
	default:
		t.Fatal("remover was not invoked")
	}
}

func TestScheduleRemoveImmediateWhenNoLocksHeld(t *testing.T) {
	c := NewChunk(testID(), "loc-1", func(ctx context.Context, id chunkid.ID) error { return nil })
	done := c.ScheduleRemove()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("removal did not complete")
	}
	if c.State() != Removed {
		t.Fatalf("State() = %v, want Removed", c.State())
	}
}

func TestScheduleRemoveIsIdempotent(t *testing.T) {
	c := NewChunk(testID(), "loc-1", func(ctx context.Context, id chunkid.ID) error { return nil })
	d1 := c.ScheduleRemove()
	d2 := c.ScheduleRemove()
	select {
	case <-d1:
	case <-time.After(time.Second):
		t.Fatal("d1 never closed")
	}
	select {
	case <-d2:
	case <-time.After(time.Second):
		t.Fatal("d2 never closed")
	}
}

func TestRemoveErrPropagated(t *testing.T) {
	wantErr := errors.New("disk gone")
	c := NewChunk(testID(), "loc-1", func(ctx context.Context, id chunkid.ID) error { return wantErr })
	<-c.ScheduleRemove()
	if c.RemoveErr() != wantErr {
		t.Fatalf("RemoveErr() = %v, want %v", c.RemoveErr(), wantErr)
	}
}

func TestAcquireGuardFailsOncePending(t *testing.T) {
	c := NewChunk(testID(), "loc-1", nil)
	g, err := c.AcquireGuard()
	if err != nil {
		t.Fatalf("AcquireGuard: %v", err)
	}

	c.ScheduleRemove()
	if _, err := c.AcquireGuard(); err == nil {
		t.Fatal("expected AcquireGuard to fail once removal is pending")
	}

	g.Release()
	g.Release() // idempotent, must not panic or double-release
}
