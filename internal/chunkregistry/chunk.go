// Package chunkregistry implements the chunk entity's read-lock state
// machine (spec §4.2) and the global chunk registry plus active write
// session manager (spec §4.5, §6 — components C2 and C6).
package chunkregistry

import (
	"context"
	"sync"
	"time"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
)

// RemovalState is the chunk's position in the read-lock/removal state
// machine described in spec §4.2.
type RemovalState int

const (
	// Live accepts new read locks and has no pending removal.
	Live RemovalState = iota
	// RemovePending has a removal scheduled but is waiting for
	// outstanding read locks to drain.
	RemovePending
	// Removing is past the lock-drain point; the background remove is
	// in flight.
	Removing
	// Removed is terminal; the chunk's promise has fulfilled.
	Removed
)

func (s RemovalState) String() string {
	switch s {
	case Live:
		return "Live"
	case RemovePending:
		return "RemovePending"
	case Removing:
		return "Removing"
	case Removed:
		return "Removed"
	default:
		return "Unknown"
	}
}

// Meta is the chunk's cached, lazily-loaded, at-most-once-mutated
// metadata (spec §3: "meta may be loaded lazily ... further publication
// is via an atomic store").
type Meta struct {
	RowCount    int64
	DiskSpace   int64
	Sealed      bool
	HunkRefs    []HunkChunkRef
}

// HunkChunkRef is one entry of a chunk's hunk-chunk-refs table, used to
// globalize LocalRef hunk values on read (spec §4.4.5, §3).
type HunkChunkRef struct {
	ChunkID         chunkid.ID
	ErasureCodec    uint32
	HunkCount       int64
	TotalHunkLength int64
}

// Remover performs the actual background removal of a chunk's on-disk
// parts (move-to-trash or delete, per spec §4.1) once the read-lock
// counter has drained to zero. It is supplied by the owning Location.
type Remover func(ctx context.Context, id chunkid.ID) error

// Chunk is a per-chunk handle: refcounted meta, a read-lock counter, and
// a removal-pending latch (spec §3 "Chunk entity").
type Chunk struct {
	ID       chunkid.ID
	Location string // location id owning this chunk

	mu            sync.Mutex
	version       uint64
	meta          *Meta
	readLockCount int
	state         RemovalState
	remover       Remover
	removeCh      chan struct{} // closed exactly once, when Removed is reached
	removeErr     error
}

// NewChunk creates a chunk handle in the Live state with zero read locks.
func NewChunk(id chunkid.ID, location string, remover Remover) *Chunk {
	return &Chunk{
		ID:       id,
		Location: location,
		state:    Live,
		remover:  remover,
		removeCh: make(chan struct{}),
	}
}

// Version returns the monotone version counter, bumped whenever meta
// mutates.
func (c *Chunk) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Meta returns the cached meta, or nil if not yet loaded.
func (c *Chunk) Meta() *Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// SetMeta publishes meta for the first time, or republishes an updated
// copy, bumping the version. Per spec §3/§5, meta mutates lazily and at
// most once in the common case, with further publication via atomic
// replace under the chunk's own lock (a stronger guarantee than a bare
// atomic.Pointer since callers may need read-modify-write semantics).
func (c *Chunk) SetMeta(m *Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = m
	c.version++
}

// State returns the current removal state.
func (c *Chunk) State() RemovalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TryAcquireReadLock attempts to take a read lock. It fails iff the chunk
// is in RemovePending or later (spec §4.2 contract).
func (c *Chunk) TryAcquireReadLock() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Live {
		return false
	}
	c.readLockCount++
	return true
}

// ReleaseReadLock releases a previously acquired read lock. If the
// release brings the count to zero while a removal is pending, the
// RemovePending -> Removing transition happens exactly once here, and
// the background remove is kicked off asynchronously.
func (c *Chunk) ReleaseReadLock() {
	var doRemove bool
	c.mu.Lock()
	if c.readLockCount == 0 {
		c.mu.Unlock()
		return
	}
	c.readLockCount--
	if c.readLockCount == 0 && c.state == RemovePending {
		c.state = Removing
		doRemove = true
	}
	c.mu.Unlock()

	if doRemove {
		go c.runRemove()
	}
}

// ScheduleRemove requests removal of the chunk. It is idempotent: a
// second call returns the same completion channel as the first. If the
// lock counter is already zero, the Removing transition and background
// remove start immediately; otherwise the chunk moves to RemovePending
// and the transition happens on the read lock that drains the counter.
func (c *Chunk) ScheduleRemove() <-chan struct{} {
	var doRemove bool
	c.mu.Lock()
	switch c.state {
	case Live:
		if c.readLockCount == 0 {
			c.state = Removing
			doRemove = true
		} else {
			c.state = RemovePending
		}
	case RemovePending, Removing, Removed:
		// idempotent: fall through, return existing channel
	}
	ch := c.removeCh
	c.mu.Unlock()

	if doRemove {
		go c.runRemove()
	}
	return ch
}

// RemoveErr returns the error from the background remove, valid only
// after the removal channel has closed.
func (c *Chunk) RemoveErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeErr
}

func (c *Chunk) runRemove() {
	var err error
	if c.remover != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = c.remover(ctx, c.ID)
	}

	c.mu.Lock()
	c.removeErr = err
	c.state = Removed
	ch := c.removeCh
	c.mu.Unlock()

	close(ch)
}

// AcquireGuard attempts to take a read lock and returns a scoped guard
// that releases it on Release, or an error if the chunk is no longer
// live. Mirrors the "acquire a read-lock guard" step of findBlock
// (spec §4.3 step 4).
func (c *Chunk) AcquireGuard() (*ReadLockGuard, error) {
	if !c.TryAcquireReadLock() {
		return nil, dataerr.New(dataerr.NoSuchChunk, "chunk is being removed")
	}
	return &ReadLockGuard{chunk: c}, nil
}

// ReadLockGuard releases its read lock exactly once, in Release.
type ReadLockGuard struct {
	chunk    *Chunk
	released bool
	mu       sync.Mutex
}

// Release is idempotent.
func (g *ReadLockGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.chunk.ReleaseReadLock()
}
