package hunk

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"datanode/internal/chunkid"
)

// maxHunkCountPerRead and maxTotalHunkLengthPerRead bound how many
// out-of-line hunks a single table-reader call will resolve before it
// must return a partial batch and let the caller page the rest (spec
// §4.4.5 "Batching").
const (
	maxHunkCountPerRead       = 256
	maxTotalHunkLengthPerRead = 8 << 20
)

// ChunkRefTable resolves a row's local hunk-chunk index (as carried by a
// LocalRef value) to the global chunk id and erasure codec of the hunk
// chunk, from the owning chunk's hunk-chunk-refs table (spec §3).
type ChunkRefTable interface {
	Ref(chunkIndex int) (id chunkid.ID, erasureCodec uint32, ok bool)
}

// Globalize rewrites a LocalRef into a GlobalRef using table; other tags
// pass through unchanged.
func Globalize(v Value, table ChunkRefTable) (Value, error) {
	if v.Tag != TagLocalRef {
		return v, nil
	}
	id, codec, ok := table.Ref(v.ChunkIndex)
	if !ok {
		return Value{}, fmt.Errorf("hunk: no hunk chunk ref for local index %d", v.ChunkIndex)
	}
	return GlobalRef(id, codec, v.BlockIndex, v.BlockOffset, v.Length), nil
}

// ChunkOpener locates the hunk chunk with the given id and returns the
// paths of its data and index files, which the Fetcher opens with
// OpenReader.
type ChunkOpener interface {
	OpenHunkChunk(ctx context.Context, id chunkid.ID) (dataPath, indexPath string, err error)
}

// Fetcher resolves hunk values to their payload bytes, caching open hunk
// chunk readers and applying the inline-on-merge policy (spec §4.4.5
// "Inlining on merge": a ref at or below a threshold, or explicitly requested
// by the caller, is replaced by its payload so downstream consumers
// never see a ref that would require another round trip).
type Fetcher struct {
	opener ChunkOpener

	mu     sync.Mutex
	cache  *lru.Cache[chunkid.ID, *Reader]
}

// NewFetcher creates a Fetcher backed by opener, caching up to capacity
// hunk chunk readers.
func NewFetcher(opener ChunkOpener, capacity int) (*Fetcher, error) {
	if capacity <= 0 {
		capacity = 64
	}
	f := &Fetcher{opener: opener}
	c, err := lru.NewWithEvict(capacity, func(_ chunkid.ID, r *Reader) { _ = r.Close() })
	if err != nil {
		return nil, err
	}
	f.cache = c
	return f, nil
}

func (f *Fetcher) reader(ctx context.Context, id chunkid.ID) (*Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.cache.Get(id); ok {
		return r, nil
	}
	dataPath, indexPath, err := f.opener.OpenHunkChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := OpenReader(dataPath, indexPath)
	if err != nil {
		return nil, err
	}
	f.cache.Add(id, r)
	return r, nil
}

// Resolve fetches the payload for v (a GlobalRef; callers must Globalize
// LocalRefs first) and, if its length is at or below inlineThreshold or
// forceInline is true, returns an Inline value in place of the ref.
func (f *Fetcher) Resolve(ctx context.Context, v Value, inlineThreshold int64, forceInline bool) ([]byte, Value, error) {
	switch v.Tag {
	case TagInline:
		return v.Payload, v, nil
	case TagLocalRef:
		return nil, Value{}, fmt.Errorf("hunk: Resolve called on an un-globalized local ref")
	case TagGlobalRef:
		r, err := f.reader(ctx, v.ChunkID)
		if err != nil {
			return nil, Value{}, fmt.Errorf("hunk: open hunk chunk %s: %w", v.ChunkID.String(), err)
		}
		payload, err := r.ReadHunk(v.BlockIndex, v.BlockOffset, v.Length)
		if err != nil {
			return nil, Value{}, err
		}
		if forceInline || v.Length <= inlineThreshold {
			return payload, Inline(payload), nil
		}
		return payload, v, nil
	default:
		return nil, Value{}, fmt.Errorf("hunk: unknown tag %d", v.Tag)
	}
}

// ResolveBatch resolves values in order, stopping early (and returning
// the index of the first unresolved value) once either
// maxHunkCountPerRead or maxTotalHunkLengthPerRead would be exceeded, so
// callers can page the remainder through a subsequent call.
func (f *Fetcher) ResolveBatch(ctx context.Context, values []Value, inlineThreshold int64) (resolved []Value, nextIndex int, err error) {
	out := make([]Value, 0, len(values))
	var count int
	var total int64

	for i, v := range values {
		if v.Tag != TagInline {
			if count >= maxHunkCountPerRead || total+v.Length > maxTotalHunkLengthPerRead {
				return out, i, nil
			}
			count++
			total += v.Length
		}
		_, resolvedVal, err := f.Resolve(ctx, v, inlineThreshold, false)
		if err != nil {
			return nil, i, err
		}
		out = append(out, resolvedVal)
	}
	return out, len(values), nil
}
