package blockstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
)

type fakeReader struct {
	calls atomic.Int64
	data  map[int][]byte
	err   error
}

func (r *fakeReader) ReadBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]byte, 0, count)
	for i := first; i < first+count; i++ {
		b, ok := r.data[i]
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

type fakeLookup struct {
	mu     sync.Mutex
	chunks map[chunkid.ID]*chunkregistry.Chunk
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{chunks: make(map[chunkid.ID]*chunkregistry.Chunk)}
}

func (l *fakeLookup) add(id chunkid.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks[id] = chunkregistry.NewChunk(id, "loc-1", nil)
}

func (l *fakeLookup) Lookup(id chunkid.ID) (*chunkregistry.Chunk, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chunks[id]
	return c, ok
}

func newTestStore(t *testing.T, reader *fakeReader, lookup *fakeLookup) *Store {
	t.Helper()
	s, err := New(Config{Registry: lookup, Reader: reader, MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestFindBlockCachesOnHit(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 0)
	lookup := newFakeLookup()
	lookup.add(id)
	reader := &fakeReader{data: map[int][]byte{0: []byte("block-0")}}
	s := newTestStore(t, reader, lookup)

	b1, err := s.FindBlock(context.Background(), id, 0, 0, true)
	if err != nil {
		t.Fatalf("FindBlock: %v", err)
	}
	if string(b1) != "block-0" {
		t.Fatalf("FindBlock() = %q, want block-0", b1)
	}

	b2, err := s.FindBlock(context.Background(), id, 0, 0, true)
	if err != nil {
		t.Fatalf("FindBlock (cached): %v", err)
	}
	if string(b2) != "block-0" {
		t.Fatalf("FindBlock (cached) = %q, want block-0", b2)
	}

	if reader.calls.Load() != 1 {
		t.Fatalf("reader called %d times, want 1 (second should hit cache)", reader.calls.Load())
	}
	if s.HitCount() != 1 {
		t.Fatalf("HitCount() = %d, want 1", s.HitCount())
	}
	if s.MissCount() != 1 {
		t.Fatalf("MissCount() = %d, want 1", s.MissCount())
	}
}

func TestFindBlockBypassSkipsCache(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 0)
	lookup := newFakeLookup()
	lookup.add(id)
	reader := &fakeReader{data: map[int][]byte{0: []byte("block-0")}}
	s := newTestStore(t, reader, lookup)

	if _, err := s.FindBlock(context.Background(), id, 0, 0, false); err != nil {
		t.Fatalf("FindBlock: %v", err)
	}
	if _, err := s.FindBlock(context.Background(), id, 0, 0, false); err != nil {
		t.Fatalf("FindBlock: %v", err)
	}
	if reader.calls.Load() != 2 {
		t.Fatalf("reader called %d times, want 2 (bypass never caches)", reader.calls.Load())
	}
}

func TestFindBlockUnknownChunkReturnsNilNoError(t *testing.T) {
	lookup := newFakeLookup()
	reader := &fakeReader{}
	s := newTestStore(t, reader, lookup)

	b, err := s.FindBlock(context.Background(), chunkid.New(chunkid.Blob, 0), 0, 0, true)
	if err != nil {
		t.Fatalf("FindBlock: %v", err)
	}
	if b != nil {
		t.Fatalf("FindBlock() = %v, want nil for unknown chunk", b)
	}
}

func TestPutBlockDetectsMismatch(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 0)
	s := newTestStore(t, &fakeReader{}, newFakeLookup())

	if err := s.PutBlock(id, 0, []byte("aaa"), ""); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := s.PutBlock(id, 0, []byte("aaa"), ""); err != nil {
		t.Fatalf("PutBlock duplicate identical: %v", err)
	}
	if err := s.PutBlock(id, 0, []byte("bbb"), ""); err != ErrBlockMismatch {
		t.Fatalf("PutBlock mismatch = %v, want ErrBlockMismatch", err)
	}
}

func TestPutBlockRecordsPeerHint(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 0)
	s := newTestStore(t, &fakeReader{}, newFakeLookup())

	if err := s.PutBlock(id, 0, []byte("aaa"), "peer-1"); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	hints := s.PeerDirectory().Hints(Key{ChunkID: id, BlockIndex: 0})
	if len(hints) != 1 || hints[0].Node != "peer-1" {
		t.Fatalf("Hints() = %+v, want [peer-1]", hints)
	}
}

func TestFindBlocksRespectsMaxBlocksPerRead(t *testing.T) {
	id := chunkid.New(chunkid.Blob, 0)
	reader := &fakeReader{data: map[int][]byte{0: {1}, 1: {2}, 2: {3}}}
	s, err := New(Config{Registry: newFakeLookup(), Reader: reader, MaxBytes: 1 << 20, MaxBlocksPerRead: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blocks, err := s.FindBlocks(context.Background(), id, 0, 3, 0)
	if err != nil {
		t.Fatalf("FindBlocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("FindBlocks() returned %d blocks, want 2 (capped by MaxBlocksPerRead)", len(blocks))
	}
}

func TestPendingReadGuardRelease(t *testing.T) {
	s := newTestStore(t, &fakeReader{}, newFakeLookup())
	guard := s.IncreasePendingReadSize(100)
	if s.PendingReadSize() != 100 {
		t.Fatalf("PendingReadSize() = %d, want 100", s.PendingReadSize())
	}
	guard.Release()
	guard.Release()
	if s.PendingReadSize() != 0 {
		t.Fatalf("PendingReadSize() after release = %d, want 0", s.PendingReadSize())
	}
}
