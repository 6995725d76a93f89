package chunkbody

import (
	"context"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
	"datanode/internal/invoker"
)

// Body is the common read surface of a blob or journal chunk.
type Body interface {
	ReadBlocks(first, count int) ([][]byte, error)
	Close() error
}

// Locator resolves a chunk id to its on-disk part paths; implemented by
// internal/location.Location.
type Locator interface {
	BlobParts(id chunkid.ID) (data, meta string)
	JournalParts(id chunkid.ID) (data, index, sealed string)
	DataReadPool() *invoker.Pool
	Disable(err error)
}

// ReaderCache is the per-chunk open-file-reader cache (spec §4.3: "the
// per-chunk readers are themselves cached, an LRU of open file
// handles").
type ReaderCache struct {
	mu    sync.Mutex
	cache *lru.Cache[chunkid.ID, Body]
}

// NewReaderCache creates a cache holding at most capacity open readers,
// closing evicted ones.
func NewReaderCache(capacity int) (*ReaderCache, error) {
	if capacity <= 0 {
		capacity = 512
	}
	rc := &ReaderCache{}
	c, err := lru.NewWithEvict(capacity, func(_ chunkid.ID, body Body) {
		_ = body.Close()
	})
	if err != nil {
		return nil, err
	}
	rc.cache = c
	return rc, nil
}

// Get returns the cached reader for id, opening it via locator if
// necessary.
func (rc *ReaderCache) Get(id chunkid.ID, locator Locator) (Body, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if b, ok := rc.cache.Get(id); ok {
		return b, nil
	}

	var body Body
	var err error
	if id.ObjectType() == chunkid.Journal {
		data, index, sealedPath := locator.JournalParts(id)
		_, statErr := os.Stat(sealedPath)
		sealed := statErr == nil
		body, err = OpenJournalReader(data, index, sealed)
	} else {
		data, meta := locator.BlobParts(id)
		body, err = OpenBlobReader(data, meta)
	}
	if err != nil {
		return nil, err
	}
	rc.cache.Add(id, body)
	return body, nil
}

// Evict drops (and closes) the cached reader for id, e.g. once a chunk
// is removed so its meta can be evicted from reader caches (spec §4.2).
func (rc *ReaderCache) Evict(id chunkid.ID) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache.Remove(id)
}

// BlockReaderAdapter implements blockstore.BlockReader by dispatching
// reads through the owning location's dataRead invoker, with priority,
// and disabling the location on unrecoverable I/O error (spec §4.3 step
// 5, §4.1).
type BlockReaderAdapter struct {
	Locator Locator
	Cache   *ReaderCache
}

// ReadBlocks implements blockstore.BlockReader.
func (a *BlockReaderAdapter) ReadBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error) {
	type result struct {
		blocks [][]byte
		err    error
	}
	resCh := make(chan result, 1)

	fut := a.Locator.DataReadPool().Submit(ctx, priority, func(ctx context.Context) error {
		body, err := a.Cache.Get(id, a.Locator)
		if err != nil {
			resCh <- result{err: fmt.Errorf("chunkbody: open reader for %s: %w", id.String(), err)}
			return err
		}
		blocks, err := body.ReadBlocks(first, count)
		resCh <- result{blocks: blocks, err: err}
		return err
	})

	if err := fut.Wait(ctx); err != nil {
		select {
		case r := <-resCh:
			if r.err != nil {
				werr := dataerr.Wrap(dataerr.IOError, "chunk block read", r.err)
				a.Locator.Disable(werr)
				return nil, werr
			}
		default:
		}
		return nil, err
	}

	r := <-resCh
	return r.blocks, nil
}
