package chunkregistry

import (
	"context"
	"testing"
	"time"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
)

func TestRegistryRegisterLookupUnregister(t *testing.T) {
	r := New(nil)
	id := testID()
	c := NewChunk(id, "loc-1", nil)

	if err := r.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.Has(id) {
		t.Fatal("expected Has to report true after Register")
	}
	got, ok := r.Lookup(id)
	if !ok || got != c {
		t.Fatal("Lookup did not return the registered chunk")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	r.Unregister(id)
	if r.Has(id) {
		t.Fatal("expected Has to report false after Unregister")
	}
}

func TestRegistryRegisterDuplicateFails(t *testing.T) {
	r := New(nil)
	id := testID()
	if err := r.Register(NewChunk(id, "loc-1", nil)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(NewChunk(id, "loc-1", nil))
	if dataerr.KindOf(err) != dataerr.ChunkAlreadyExists {
		t.Fatalf("KindOf(err) = %v, want ChunkAlreadyExists", dataerr.KindOf(err))
	}
}

func TestRegistryList(t *testing.T) {
	r := New(nil)
	ids := []chunkid.ID{testID(), testID(), testID()}
	for _, id := range ids {
		if err := r.Register(NewChunk(id, "loc-1", nil)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if got := r.List(); len(got) != len(ids) {
		t.Fatalf("List() length = %d, want %d", len(got), len(ids))
	}
}

func TestRegistryScheduleRemoveUnregistersOnCompletion(t *testing.T) {
	r := New(nil)
	id := testID()
	removed := make(chan struct{})
	c := NewChunk(id, "loc-1", func(ctx context.Context, id chunkid.ID) error {
		close(removed)
		return nil
	})
	if err := r.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done, err := r.ScheduleRemove(id)
	if err != nil {
		t.Fatalf("ScheduleRemove: %v", err)
	}

	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("remover was not invoked")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}

	// Registry.Unregister happens in a goroutine racing the done
	// channel close; poll briefly instead of asserting immediately.
	deadline := time.Now().Add(time.Second)
	for r.Has(id) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if r.Has(id) {
		t.Fatal("expected chunk to be unregistered after removal completes")
	}
}

func TestRegistryScheduleRemoveUnknownChunk(t *testing.T) {
	r := New(nil)
	_, err := r.ScheduleRemove(testID())
	if dataerr.KindOf(err) != dataerr.NoSuchChunk {
		t.Fatalf("KindOf(err) = %v, want NoSuchChunk", dataerr.KindOf(err))
	}
}
