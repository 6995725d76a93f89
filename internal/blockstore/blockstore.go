// Package blockstore implements the SLRU block cache, insertion-cookie
// request coalescing, and peer-block directory described in spec §4.3
// (component C4).
package blockstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
	"datanode/internal/dataerr"
	"datanode/internal/logging"
)

// ErrBlockMismatch is returned by PutBlock when a block already cached
// under this key has different bytes than the incoming payload. Per
// the rewrite decision recorded in SPEC_FULL.md §14, this remains a
// programming-error condition: callers should log it at Error level
// rather than retry.
var ErrBlockMismatch = errors.New("blockstore: put-over-existing block with mismatched payload")

// Key identifies a cached block.
type Key struct {
	ChunkID    chunkid.ID
	BlockIndex int
}

// BlockReader reads blocks from the location's data-read invoker when
// the cache misses (spec §4.3 step 5: "Submit chunk.readBlocks(...) to
// the location's dataRead invoker").
type BlockReader interface {
	ReadBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error)
}

// ChunkLookup is the subset of the chunk registry the block store needs.
type ChunkLookup interface {
	Lookup(id chunkid.ID) (*chunkregistry.Chunk, bool)
}

// Config configures a Store.
type Config struct {
	Registry        ChunkLookup
	Reader          BlockReader
	MaxBytes        int64
	MaxBlocksPerRead int
	MaxBytesPerRead  int64
	ProtectedRatio   float64 // stored (default 0.8) but not consulted by eviction; both segments share MaxBytes
	Logger           *slog.Logger
}

// Store is an SLRU cache of uncompressed blocks keyed by (chunkId,
// blockIndex), approximated as two LRU segments (probationary and
// protected), as described in DESIGN.md's internal/blockstore row.
type Store struct {
	cfg Config

	probationary *lru.Cache[Key, []byte]
	protected    *lru.Cache[Key, []byte]
	curBytes     atomic.Int64

	sf singleflight.Group

	pendingReadSize atomic.Int64

	peerDir *PeerDirectory

	hitCount  atomic.Int64
	missCount atomic.Int64

	mu sync.Mutex // guards weight bookkeeping across the two segments

	logger *slog.Logger
}

// New creates a Store. Capacities are entry-count based for the
// underlying LRUs (golang-lru requires a fixed slot count); byte-weight
// accounting and eviction-by-weight are layered on top in evictIfNeeded.
func New(cfg Config) (*Store, error) {
	if cfg.MaxBlocksPerRead <= 0 {
		cfg.MaxBlocksPerRead = 64
	}
	if cfg.MaxBytesPerRead <= 0 {
		cfg.MaxBytesPerRead = 16 << 20
	}
	if cfg.ProtectedRatio <= 0 {
		cfg.ProtectedRatio = 0.8
	}

	const slotEstimate = 1 << 16 // slot-count cap; byte budget is enforced separately
	prob, err := lru.New[Key, []byte](slotEstimate)
	if err != nil {
		return nil, err
	}
	prot, err := lru.New[Key, []byte](slotEstimate)
	if err != nil {
		return nil, err
	}

	return &Store{
		cfg:          cfg,
		probationary: prob,
		protected:    prot,
		peerDir:      NewPeerDirectory(),
		logger:       logging.Default(cfg.Logger).With("component", "block-store"),
	}, nil
}

// PeerDirectory exposes the store's peer-block directory.
func (s *Store) PeerDirectory() *PeerDirectory { return s.peerDir }

func (s *Store) lookupCache(key Key) ([]byte, bool) {
	if b, ok := s.protected.Get(key); ok {
		return b, true
	}
	if b, ok := s.probationary.Peek(key); ok {
		// Promote on second touch: probationary hit moves to protected.
		s.probationary.Remove(key)
		s.protected.Add(key, b)
		return b, true
	}
	return nil, false
}

// FindBlock implements spec §4.3 findBlock. enableCaching controls
// whether a miss is inserted into the cache (with coalescing) or
// fetched as a one-off bypass read.
func (s *Store) FindBlock(ctx context.Context, id chunkid.ID, blockIndex, priority int, enableCaching bool) ([]byte, error) {
	key := Key{ChunkID: id, BlockIndex: blockIndex}

	if b, ok := s.lookupCache(key); ok {
		s.hitCount.Add(1)
		recordCacheHit()
		return b, nil
	}
	s.missCount.Add(1)
	recordCacheMiss()

	if !enableCaching {
		return s.fetchOne(ctx, id, blockIndex, priority)
	}

	// Insertion-cookie coalescing: concurrent misses on the same key
	// become a single producer (spec §8 "Coalescing").
	sfKey := cookieKey(id, blockIndex)
	v, err, _ := s.sf.Do(sfKey, func() (any, error) {
		// Re-check the cache: another goroutine may have inserted while
		// we were queued behind the singleflight lock.
		if b, ok := s.lookupCache(key); ok {
			return b, nil
		}
		data, ferr := s.fetchOne(ctx, id, blockIndex, priority)
		if ferr != nil {
			return nil, ferr
		}
		s.insert(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) fetchOne(ctx context.Context, id chunkid.ID, blockIndex, priority int) ([]byte, error) {
	c, ok := s.cfg.Registry.Lookup(id)
	if !ok {
		return nil, nil // spec: registry absent -> return empty, not an error
	}
	guard, err := c.AcquireGuard()
	if err != nil {
		return nil, nil // read-lock acquisition failed -> return empty
	}
	defer guard.Release()

	blocks, err := s.cfg.Reader.ReadBlocks(ctx, id, blockIndex, 1, priority)
	if err != nil {
		return nil, dataerr.Wrap(dataerr.IOError, "read block", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return blocks[0], nil
}

// FindBlocks bypasses the cache entirely; used for replication reads
// (spec §4.3 findBlocks). It respects the per-chunk read limits: at
// most MaxBlocksPerRead blocks, stopping once cumulative size exceeds
// MaxBytesPerRead.
func (s *Store) FindBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error) {
	if count > s.cfg.MaxBlocksPerRead {
		count = s.cfg.MaxBlocksPerRead
	}
	blocks, err := s.cfg.Reader.ReadBlocks(ctx, id, first, count, priority)
	if err != nil {
		return nil, dataerr.Wrap(dataerr.IOError, "read blocks", err)
	}

	var total int64
	out := blocks[:0:0]
	for _, b := range blocks {
		if total+int64(len(b)) > s.cfg.MaxBytesPerRead && len(out) > 0 {
			break
		}
		out = append(out, b)
		total += int64(len(b))
	}
	return out, nil
}

// PutBlock inserts a block proactively (e.g. from a replication write).
// If a block with this id already caches, the payloads must be
// bitwise-identical; duplicates are tolerated since removed chunks do
// not evict their cached blocks immediately (spec §4.3).
func (s *Store) PutBlock(id chunkid.ID, blockIndex int, data []byte, source string) error {
	key := Key{ChunkID: id, BlockIndex: blockIndex}
	if existing, ok := s.lookupCache(key); ok {
		if !bytesEqual(existing, data) {
			return ErrBlockMismatch
		}
		return nil
	}
	s.insert(key, data)
	if source != "" {
		s.peerDir.Record(key, source, 0)
	}
	return nil
}

func (s *Store) insert(key Key, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probationary.Add(key, data)
	s.curBytes.Add(int64(len(data)))
	s.evictIfNeeded()
}

// evictIfNeeded enforces the fixed byte capacity by evicting from the
// probationary segment first, then the protected segment, matching SLRU
// semantics (new/rarely-reused entries are sacrificed before hot ones).
// Caller holds s.mu.
func (s *Store) evictIfNeeded() {
	for s.curBytes.Load() > s.cfg.MaxBytes {
		if key, val, ok := s.probationary.GetOldest(); ok {
			s.probationary.Remove(key)
			s.curBytes.Add(-int64(len(val)))
			continue
		}
		if key, val, ok := s.protected.GetOldest(); ok {
			s.protected.Remove(key)
			s.curBytes.Add(-int64(len(val)))
			continue
		}
		break
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cookieKey(id chunkid.ID, blockIndex int) string {
	return id.String() + ":" + strconv.Itoa(blockIndex)
}

// HitCount / MissCount expose cache statistics for metrics.
func (s *Store) HitCount() int64  { return s.hitCount.Load() }
func (s *Store) MissCount() int64 { return s.missCount.Load() }

// PendingReadGuard decrements the pending-read-size counter on Release.
type PendingReadGuard struct {
	store *Store
	n     int64
	once  sync.Once
}

func (g *PendingReadGuard) Release() {
	g.once.Do(func() { g.store.pendingReadSize.Add(-g.n) })
}

// IncreasePendingReadSize accounts n bytes of in-flight reads, returned
// to callers as a scoped guard for backpressure/admission (spec §4.3).
func (s *Store) IncreasePendingReadSize(n int64) *PendingReadGuard {
	s.pendingReadSize.Add(n)
	return &PendingReadGuard{store: s, n: n}
}

// PendingReadSize returns the current pending-read-size accounting.
func (s *Store) PendingReadSize() int64 { return s.pendingReadSize.Load() }
