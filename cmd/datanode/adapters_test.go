package main

import (
	"context"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"datanode/internal/chunkbody"
	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
	"datanode/internal/location"
)

func TestSessionType(t *testing.T) {
	cases := map[string]chunkregistry.SessionType{
		"replication": chunkregistry.ReplicationSession,
		"repair":      chunkregistry.RepairSession,
		"":            chunkregistry.UserSession,
		"bogus":       chunkregistry.UserSession,
	}
	for kind, want := range cases {
		if got := sessionType(kind); got != want {
			t.Errorf("sessionType(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestBlobCodecFor(t *testing.T) {
	if got := blobCodecFor("repair"); got != chunkbody.CodecBrotli {
		t.Errorf("blobCodecFor(repair) = %v, want CodecBrotli", got)
	}
	for _, kind := range []string{"replication", "", "bogus"} {
		if got := blobCodecFor(kind); got != chunkbody.CodecZstd {
			t.Errorf("blobCodecFor(%q) = %v, want CodecZstd", kind, got)
		}
	}
}

func TestEncodeBlockKeyRoundTrips(t *testing.T) {
	data := encodeBlockKey(42)
	var got blockKey
	if err := msgpack.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.BlockIndex != 42 {
		t.Fatalf("BlockIndex = %d, want 42", got.BlockIndex)
	}
}

func newTestLocation(t *testing.T, id string) *location.Location {
	t.Helper()
	loc, err := location.New(location.Config{
		ID:   id,
		Path: t.TempDir(),
		Type: location.Store,
		Watermarks: location.Watermarks{
			Low: 50, High: 10, TrashCleanup: 90,
		},
	})
	if err != nil {
		t.Fatalf("location.New: %v", err)
	}
	return loc
}

func TestLocationsGet(t *testing.T) {
	locA := newTestLocation(t, "loc-a")
	locB := newTestLocation(t, "loc-b")
	locs := newLocations([]*location.Location{locA, locB})

	got, ok := locs.get("loc-b")
	if !ok || got != locB {
		t.Fatal("get(loc-b) did not return the registered location")
	}
	if _, ok := locs.get("missing"); ok {
		t.Fatal("expected get(missing) to report not found")
	}
}

func writeBlobChunk(t *testing.T, loc *location.Location, id chunkid.ID, blocks [][]byte) {
	t.Helper()
	data, meta := loc.BlobParts(id)
	w, err := chunkbody.CreateBlobWriter(data, meta)
	if err != nil {
		t.Fatalf("CreateBlobWriter: %v", err)
	}
	if err := w.PutBlocks(0, blocks); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if err := w.Finish(nil, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestTableWorkAdapterSamples(t *testing.T) {
	loc := newTestLocation(t, "loc-a")
	locs := newLocations([]*location.Location{loc})
	registry := chunkregistry.New(nil)

	id := chunkid.New(chunkid.Blob, 0)
	writeBlobChunk(t, loc, id, [][]byte{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}, {10}})
	if err := registry.Register(chunkregistry.NewChunk(id, "loc-a", nil)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tw := &tableWorkAdapter{registry: registry, locs: locs}
	keys, err := tw.Samples(context.Background(), id, 1.0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(keys) != 10 {
		t.Fatalf("Samples(rate=1.0) returned %d keys, want 10 (every block)", len(keys))
	}

	none, err := tw.Samples(context.Background(), id, 0.0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("Samples(rate=0.0) returned %d keys, want 0", len(none))
	}
}

func TestTableWorkAdapterSplits(t *testing.T) {
	loc := newTestLocation(t, "loc-a")
	locs := newLocations([]*location.Location{loc})
	registry := chunkregistry.New(nil)

	id := chunkid.New(chunkid.Blob, 0)
	blocks := make([][]byte, 10)
	for i := range blocks {
		blocks[i] = []byte("xxxxxxxxxx")
	}
	writeBlobChunk(t, loc, id, blocks)

	chunk := chunkregistry.NewChunk(id, "loc-a", nil)
	chunk.SetMeta(&chunkregistry.Meta{DiskSpace: 1000})
	if err := registry.Register(chunk); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tw := &tableWorkAdapter{registry: registry, locs: locs}
	keys, err := tw.Splits(context.Background(), id, 300)
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	// 100 bytes/block, target 300 => 3 blocks/split, splits at 3, 6, 9.
	if len(keys) != 3 {
		t.Fatalf("Splits() returned %d keys, want 3", len(keys))
	}
}

func TestTableWorkAdapterBlockCountUnknownChunk(t *testing.T) {
	loc := newTestLocation(t, "loc-a")
	locs := newLocations([]*location.Location{loc})
	registry := chunkregistry.New(nil)
	tw := &tableWorkAdapter{registry: registry, locs: locs}

	if _, err := tw.blockCount(chunkid.New(chunkid.Blob, 0)); err == nil {
		t.Fatal("expected blockCount to fail for an unregistered chunk")
	}
}

func TestAlwaysOnline(t *testing.T) {
	gate := alwaysOnline{}
	if !gate.Online() {
		t.Fatal("alwaysOnline.Online() = false, want true")
	}
}
