package chunkbody

import (
	"context"
	"path/filepath"
	"testing"

	"datanode/internal/chunkid"
	"datanode/internal/invoker"
)

type fakeLocator struct {
	dir         string
	pool        *invoker.Pool
	disableErr  error
	disableSeen chan struct{}
}

func newFakeLocator(t *testing.T) *fakeLocator {
	t.Helper()
	return &fakeLocator{dir: t.TempDir(), pool: invoker.NewPool(1), disableSeen: make(chan struct{}, 1)}
}

func (l *fakeLocator) BlobParts(id chunkid.ID) (string, string) {
	base := filepath.Join(l.dir, id.String())
	return base, base + ".meta"
}

func (l *fakeLocator) JournalParts(id chunkid.ID) (string, string, string) {
	base := filepath.Join(l.dir, id.String())
	return base, base + ".idx", base + ".sealed"
}

func (l *fakeLocator) DataReadPool() *invoker.Pool { return l.pool }

func (l *fakeLocator) Disable(err error) {
	l.disableErr = err
	select {
	case l.disableSeen <- struct{}{}:
	default:
	}
}

func writeTestBlob(t *testing.T, locator *fakeLocator, id chunkid.ID, blocks [][]byte) {
	t.Helper()
	data, meta := locator.BlobParts(id)
	w, err := CreateBlobWriter(data, meta)
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

func TestReaderCacheOpensAndReusesBlobReader(t *testing.T) {
	locator := newFakeLocator(t)
	id := chunkid.New(chunkid.Blob, 0)
	writeTestBlob(t, locator, id, [][]byte{[]byte("a"), []byte("b")})

	rc, err := NewReaderCache(8)
	if err != nil {
		t.Fatalf("NewReaderCache: %v", err)
	}

	b1, err := rc.Get(id, locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b2, err := rc.Get(id, locator)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if b1 != b2 {
		t.Fatal("expected the second Get to return the same cached reader")
	}
}

func TestReaderCacheEvictRemovesEntry(t *testing.T) {
	locator := newFakeLocator(t)
	id := chunkid.New(chunkid.Blob, 0)
	writeTestBlob(t, locator, id, [][]byte{[]byte("a")})

	rc, err := NewReaderCache(8)
	if err != nil {
		t.Fatalf("NewReaderCache: %v", err)
	}
	if _, err := rc.Get(id, locator); err != nil {
		t.Fatalf("Get: %v", err)
	}
	rc.Evict(id)
	if rc.cache.Contains(id) {
		t.Fatal("expected Evict to remove the cached entry")
	}
}

func TestReaderCacheJournalReportsSealedState(t *testing.T) {
	locator := newFakeLocator(t)
	id := chunkid.New(chunkid.Journal, 0)
	data, index, sealedPath := locator.JournalParts(id)

	w, err := CreateJournalWriter(data, index, sealedPath)
	if err != nil {
		t.Fatalf("CreateJournalWriter: %v", err)
	}
	if err := w.PutBlocks(0, [][]byte{[]byte("row")}); err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if err := w.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	rc, err := NewReaderCache(8)
	if err != nil {
		t.Fatalf("NewReaderCache: %v", err)
	}
	body, err := rc.Get(id, locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	jr, ok := body.(*JournalReader)
	if !ok {
		t.Fatalf("body is %T, want *JournalReader", body)
	}
	if !jr.Sealed() {
		t.Fatal("Sealed() = false, want true (sealed marker present)")
	}
}

func TestBlockReaderAdapterReadsThroughPool(t *testing.T) {
	locator := newFakeLocator(t)
	id := chunkid.New(chunkid.Blob, 0)
	writeTestBlob(t, locator, id, [][]byte{[]byte("x"), []byte("y"), []byte("z")})

	rc, err := NewReaderCache(8)
	if err != nil {
		t.Fatalf("NewReaderCache: %v", err)
	}
	adapter := &BlockReaderAdapter{Locator: locator, Cache: rc}

	blocks, err := adapter.ReadBlocks(context.Background(), id, 1, 2, 0)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if len(blocks) != 2 || string(blocks[0]) != "y" || string(blocks[1]) != "z" {
		t.Fatalf("ReadBlocks() = %q, want [y z]", blocks)
	}
}

func TestBlockReaderAdapterDisablesLocatorOnReadError(t *testing.T) {
	locator := newFakeLocator(t)
	id := chunkid.New(chunkid.Blob, 0)
	// No blob files created for id, so opening a reader fails.

	rc, err := NewReaderCache(8)
	if err != nil {
		t.Fatalf("NewReaderCache: %v", err)
	}
	adapter := &BlockReaderAdapter{Locator: locator, Cache: rc}

	if _, err := adapter.ReadBlocks(context.Background(), id, 0, 1, 0); err == nil {
		t.Fatal("expected ReadBlocks to fail for a chunk with no data on disk")
	}

	select {
	case <-locator.disableSeen:
	default:
		t.Fatal("expected the locator to be disabled after an unrecoverable read error")
	}
	if locator.disableErr == nil {
		t.Fatal("expected a non-nil disable error")
	}
}
