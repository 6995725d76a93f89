package blockstore

import (
	"testing"
	"time"

	"datanode/internal/chunkid"
)

func testKey() Key {
	return Key{ChunkID: chunkid.New(chunkid.Blob, 0), BlockIndex: 3}
}

func TestPeerDirectoryRecordAndHints(t *testing.T) {
	d := NewPeerDirectory()
	key := testKey()

	d.Record(key, "node-a", time.Minute)
	d.Record(key, "node-b", time.Minute)

	hints := d.Hints(key)
	if len(hints) != 2 {
		t.Fatalf("Hints() length = %d, want 2", len(hints))
	}
	nodes := map[string]bool{}
	for _, h := range hints {
		nodes[h.Node] = true
	}
	if !nodes["node-a"] || !nodes["node-b"] {
		t.Fatalf("Hints() = %+v, want node-a and node-b", hints)
	}
}

func TestPeerDirectoryRecordRefreshesExistingNode(t *testing.T) {
	d := NewPeerDirectory()
	key := testKey()

	d.Record(key, "node-a", time.Millisecond)
	d.Record(key, "node-a", time.Hour)

	hints := d.Hints(key)
	if len(hints) != 1 {
		t.Fatalf("Hints() length = %d, want 1 (refreshed, not duplicated)", len(hints))
	}
}

func TestPeerDirectoryExpiredHintsFiltered(t *testing.T) {
	d := NewPeerDirectory()
	key := testKey()

	d.Record(key, "node-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if hints := d.Hints(key); len(hints) != 0 {
		t.Fatalf("Hints() = %+v, want empty after expiry", hints)
	}
}

func TestPeerDirectoryUnknownKey(t *testing.T) {
	d := NewPeerDirectory()
	if hints := d.Hints(testKey()); hints != nil {
		t.Fatalf("Hints() for unknown key = %+v, want nil", hints)
	}
}
