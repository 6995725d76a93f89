// Adapters bridge the concrete internal/* packages to the small
// interfaces internal/rpcserver and internal/masterconn depend on,
// following the same server/dependency-injection seam the teacher uses
// between cmd/gastrolog and its internal orchestrator.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"datanode/internal/blockstore"
	"datanode/internal/chunkbody"
	"datanode/internal/chunkid"
	"datanode/internal/chunkregistry"
	"datanode/internal/location"
	"datanode/internal/masterconn"
	"datanode/internal/peerconn"
	"datanode/internal/rpcserver"
	"datanode/internal/tablereader"
)

// locations indexes every configured location by ID, and resolves a
// chunk id to its owning location via the registry. It is the one piece
// of wiring none of the C1-C6 packages needed to know about each other.
type locations struct {
	byID map[string]*location.Location
}

func newLocations(locs []*location.Location) *locations {
	m := make(map[string]*location.Location, len(locs))
	for _, l := range locs {
		m[l.ID()] = l
	}
	return &locations{byID: m}
}

func (ls *locations) get(id string) (*location.Location, bool) {
	l, ok := ls.byID[id]
	return l, ok
}

// multiBlockReader implements blockstore.BlockReader over every
// configured location: internal/chunkbody.BlockReaderAdapter is built
// for a single *location.Location (spec §4.3's per-location dataRead
// pool), so a node with more than one location resolves each chunk's
// owning location through the registry and dispatches a fresh adapter
// bound to it per call.
type multiBlockReader struct {
	registry *chunkregistry.Registry
	locs     *locations
	cache    *chunkbody.ReaderCache
}

var _ blockstore.BlockReader = (*multiBlockReader)(nil)

func (r *multiBlockReader) owner(id chunkid.ID) (*location.Location, error) {
	chunk, ok := r.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("datanode: unknown chunk %s", id)
	}
	loc, ok := r.locs.get(chunk.Location)
	if !ok {
		return nil, fmt.Errorf("datanode: unknown location %q for chunk %s", chunk.Location, id)
	}
	return loc, nil
}

func (r *multiBlockReader) ReadBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error) {
	loc, err := r.owner(id)
	if err != nil {
		return nil, err
	}
	adapter := &chunkbody.BlockReaderAdapter{Locator: loc, Cache: r.cache}
	return adapter.ReadBlocks(ctx, id, first, count, priority)
}

// sessionAdapter implements rpcserver.SessionStore over
// chunkregistry.SessionManager, picking a chunkbody writer (blob or
// journal, by chunkid.ObjectType) and allocating its part paths from
// the chunk's location before handing the session off.
type sessionAdapter struct {
	registry *chunkregistry.Registry
	sessions *chunkregistry.SessionManager
	locs     *locations
	homeLoc  string // location new writes land on
	peers    *peerconn.Pool
}

var _ rpcserver.SessionStore = (*sessionAdapter)(nil)

func (a *sessionAdapter) StartSession(id chunkid.ID, kind string, options map[string]string) (rpcserver.SessionWriter, error) {
	loc, ok := a.locs.get(a.homeLoc)
	if !ok {
		return nil, fmt.Errorf("datanode: home location %q not configured", a.homeLoc)
	}

	writer, err := newChunkBodyWriter(id, loc, a.peers, blobCodecFor(kind))
	if err != nil {
		return nil, err
	}

	chunk := chunkregistry.NewChunk(id, loc.ID(), a.remover(loc))
	if err := a.registry.Register(chunk); err != nil {
		return nil, err
	}

	sess, err := a.sessions.StartSession(id, sessionType(kind), options, writer)
	if err != nil {
		return nil, err
	}
	return &sessionWriterAdapter{sess: sess}, nil
}

func (a *sessionAdapter) Lookup(id chunkid.ID) (rpcserver.SessionWriter, bool) {
	sess, ok := a.sessions.Lookup(id)
	if !ok {
		return nil, false
	}
	return &sessionWriterAdapter{sess: sess}, true
}

func (a *sessionAdapter) Close(id chunkid.ID) { a.sessions.Close(id) }

func (a *sessionAdapter) remover(loc *location.Location) chunkregistry.Remover {
	return func(ctx context.Context, id chunkid.ID) error {
		data, meta := loc.BlobParts(id)
		dataJ, idx, sealed := loc.JournalParts(id)
		parts := []string{data, meta}
		if id.ObjectType() == chunkid.Journal {
			parts = []string{dataJ, idx, sealed}
		}
		return loc.RemoveChunkFiles(id, parts, 0, false)
	}
}

func sessionType(kind string) chunkregistry.SessionType {
	switch kind {
	case "replication":
		return chunkregistry.ReplicationSession
	case "repair":
		return chunkregistry.RepairSession
	default:
		return chunkregistry.UserSession
	}
}

// blobCodecFor picks the block codec for a new blob chunk from the
// session kind it is being written under. Repair sessions rebuild
// chunks that were already durable elsewhere and are expected to sit
// cold once repaired, so they trade encode speed for brotli's denser
// output; replication and user-write sessions favor zstd's cheaper
// encode cost.
func blobCodecFor(kind string) chunkbody.Codec {
	if sessionType(kind) == chunkregistry.RepairSession {
		return chunkbody.CodecBrotli
	}
	return chunkbody.CodecZstd
}

// newChunkBodyWriter constructs the chunkbody.Writer (blob or journal)
// backing a fresh session, per chunkid.ObjectType, wired to peers as its
// PeerSender for tree-push replication (sendBlocks).
func newChunkBodyWriter(id chunkid.ID, loc *location.Location, peers *peerconn.Pool, codec chunkbody.Codec) (chunkregistry.Writer, error) {
	switch id.ObjectType() {
	case chunkid.Journal:
		data, idx, sealed := loc.JournalParts(id)
		jw, err := chunkbody.CreateJournalWriter(data, idx, sealed)
		if err != nil {
			return nil, fmt.Errorf("datanode: create journal writer: %w", err)
		}
		return &chunkbody.SessionWriter{ID: id, Journal: jw, Sender: peers, DataPath: data, IndexPath: idx}, nil
	default:
		data, meta := loc.BlobParts(id)
		bw, err := chunkbody.CreateBlobWriter(data, meta, codec)
		if err != nil {
			return nil, fmt.Errorf("datanode: create blob writer: %w", err)
		}
		return &chunkbody.SessionWriter{ID: id, Blob: bw, Sender: peers, DataPath: data, IndexPath: meta}, nil
	}
}

// sessionWriterAdapter implements rpcserver.SessionWriter over a
// *chunkregistry.Session, converting the wire-level opaque meta bytes
// into chunkregistry.Meta at Finish.
type sessionWriterAdapter struct {
	sess *chunkregistry.Session
}

var _ rpcserver.SessionWriter = (*sessionWriterAdapter)(nil)

// wireMeta is the msgpack shape callers of FinishChunk encode their meta
// as; it mirrors chunkregistry.Meta except DiskSpace, which it does not
// carry (spec §4.8
// "FinishChunk req carries the sealed chunk meta", opaque at the wire
// layer per internal/rpcserver/types.go).
type wireMeta struct {
	RowCount int64
	Sealed   bool
	HunkRefs []chunkregistry.HunkChunkRef
}

func (a *sessionWriterAdapter) PutBlocks(ctx context.Context, first int, blocks [][]byte) error {
	return a.sess.PutBlocks(ctx, first, blocks)
}

func (a *sessionWriterAdapter) SendBlocks(ctx context.Context, first, count int, target string) error {
	return a.sess.SendBlocks(ctx, first, count, target)
}

func (a *sessionWriterAdapter) FlushBlocks(ctx context.Context, lastIndex int) error {
	return a.sess.FlushBlocks(ctx, lastIndex)
}

func (a *sessionWriterAdapter) Finish(ctx context.Context, meta []byte, blockCount int) error {
	var wm wireMeta
	if err := msgpack.Unmarshal(meta, &wm); err != nil {
		return fmt.Errorf("datanode: unmarshal finish meta: %w", err)
	}
	return a.sess.Finish(ctx, &chunkregistry.Meta{
		RowCount: wm.RowCount,
		Sealed:   wm.Sealed,
		HunkRefs: wm.HunkRefs,
	}, blockCount)
}

func (a *sessionWriterAdapter) Cancel(ctx context.Context, reason string) error {
	return a.sess.Cancel(ctx, reason)
}

func (a *sessionWriterAdapter) Ping() { a.sess.Ping() }

// blockAdapter implements rpcserver.BlockSource over a blockstore.Store,
// translating the (chunkid.ID, blockIndex) pair into blockstore.Key and
// []blockstore.PeerHint into bare node-name strings.
type blockAdapter struct {
	store *blockstore.Store
}

var _ rpcserver.BlockSource = (*blockAdapter)(nil)

func (a *blockAdapter) FindBlock(ctx context.Context, id chunkid.ID, blockIndex, priority int, enableCaching bool) ([]byte, error) {
	return a.store.FindBlock(ctx, id, blockIndex, priority, enableCaching)
}

func (a *blockAdapter) FindBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error) {
	return a.store.FindBlocks(ctx, id, first, count, priority)
}

func (a *blockAdapter) PendingReadSize() int64 { return a.store.PendingReadSize() }

func (a *blockAdapter) PeerHints(id chunkid.ID, blockIndex int) []string {
	hints := a.store.PeerDirectory().Hints(blockstore.Key{ChunkID: id, BlockIndex: blockIndex})
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Node
	}
	return out
}

func (a *blockAdapter) RecordPeerHint(id chunkid.ID, blockIndex int, addr string, ttl time.Duration) {
	a.store.PeerDirectory().Record(blockstore.Key{ChunkID: id, BlockIndex: blockIndex}, addr, ttl)
}

// metaAdapter implements rpcserver.MetaSource over the chunk registry.
// extensionTags/partitionTag select which hunk-ref subset to return in a
// full build-out; no per-extension/partition tagging exists on
// chunkregistry.Meta today (spec is silent on the wire shape), so this
// returns the whole meta for any tag set — documented simplification,
// see DESIGN.md.
type metaAdapter struct {
	registry *chunkregistry.Registry
}

var _ rpcserver.MetaSource = (*metaAdapter)(nil)

func (a *metaAdapter) ChunkMeta(id chunkid.ID, extensionTags []string, partitionTag string) ([]byte, bool) {
	chunk, ok := a.registry.Lookup(id)
	if !ok {
		return nil, false
	}
	meta := chunk.Meta()
	if meta == nil {
		return nil, false
	}
	data, err := msgpack.Marshal(wireMeta{RowCount: meta.RowCount, Sealed: meta.Sealed, HunkRefs: meta.HunkRefs})
	if err != nil {
		return nil, false
	}
	return data, true
}

// tableWorkAdapter implements rpcserver.TableWork at block granularity.
//
// No package in this tree decodes a block's row/cell payload into
// internal/tablereader.Row (BlockRows has no concrete implementer; see
// DESIGN.md's Open Question resolution for getTableSamples/
// getChunkSplits). Rather than invent a row codec unsupported by any
// other component, Samples/Splits operate on block boundaries: a
// "sample key" or "split key" is an opaque marker encoding a block
// index, which callers resolve back to a boundary between GetBlockSet
// calls rather than an actual row key.
type tableWorkAdapter struct {
	registry *chunkregistry.Registry
	locs     *locations
}

var _ rpcserver.TableWork = (*tableWorkAdapter)(nil)

type blockKey struct {
	BlockIndex int
}

func encodeBlockKey(idx int) []byte {
	data, _ := msgpack.Marshal(blockKey{BlockIndex: idx})
	return data
}

func (a *tableWorkAdapter) blockCount(id chunkid.ID) (int, error) {
	chunk, ok := a.registry.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("datanode: unknown chunk %s", id)
	}
	loc, ok := a.locs.get(chunk.Location)
	if !ok {
		return 0, fmt.Errorf("datanode: unknown location %q for chunk %s", chunk.Location, id)
	}

	switch id.ObjectType() {
	case chunkid.Journal:
		data, idx, _ := loc.JournalParts(id)
		meta := chunk.Meta()
		r, err := chunkbody.OpenJournalReader(data, idx, meta != nil && meta.Sealed)
		if err != nil {
			return 0, err
		}
		defer r.Close()
		n, err := r.RowCount()
		return int(n), err
	default:
		data, metaPath := loc.BlobParts(id)
		r, err := chunkbody.OpenBlobReader(data, metaPath)
		if err != nil {
			return 0, err
		}
		defer r.Close()
		return r.BlockCount(), nil
	}
}

func (a *tableWorkAdapter) Samples(ctx context.Context, id chunkid.ID, rate float64) ([][]byte, error) {
	n, err := a.blockCount(id)
	if err != nil {
		return nil, err
	}
	sampling := tablereader.Sampling{ChunkID: id, Seed: 0, Rate: rate}
	var keys [][]byte
	for b := 0; b < n; b++ {
		if sampling.IncludesBlock(b) {
			keys = append(keys, encodeBlockKey(b))
		}
	}
	return keys, nil
}

func (a *tableWorkAdapter) Splits(ctx context.Context, id chunkid.ID, targetSize int64) ([][]byte, error) {
	chunk, ok := a.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("datanode: unknown chunk %s", id)
	}
	n, err := a.blockCount(id)
	if err != nil || n == 0 {
		return nil, err
	}

	meta := chunk.Meta()
	var totalBytes int64
	if meta != nil {
		totalBytes = meta.DiskSpace
	}

	blocksPerSplit := n
	if totalBytes > 0 && targetSize > 0 {
		perBlock := totalBytes / int64(n)
		if perBlock > 0 {
			blocksPerSplit = int(targetSize / perBlock)
		}
	}
	if blocksPerSplit < 1 {
		blocksPerSplit = 1
	}

	var keys [][]byte
	for b := blocksPerSplit; b < n; b += blocksPerSplit {
		keys = append(keys, encodeBlockKey(b))
	}
	return keys, nil
}

// precacheAdapter implements rpcserver.Precacher: walks every block of
// a chunk through the block store with caching enabled, which is
// sufficient to populate the cache (spec §4.8 "precacheChunk ...
// fetches and caches every block").
type precacheAdapter struct {
	registry *chunkregistry.Registry
	store    *blockstore.Store
	tw       *tableWorkAdapter
}

var _ rpcserver.Precacher = (*precacheAdapter)(nil)

func (a *precacheAdapter) Precache(ctx context.Context, id chunkid.ID) error {
	n, err := a.tw.blockCount(id)
	if err != nil {
		return err
	}
	for b := 0; b < n; b++ {
		if _, err := a.store.FindBlock(ctx, id, b, 0, true); err != nil {
			return err
		}
	}
	return nil
}

// chunkEnumerator implements masterconn.ChunkEnumerator over the
// registry: every registered chunk, whether it lives on a Store
// location or on a Cache location (spec §4.7 "full heartbeats
// enumerate every stored and every cached chunk"). Blocks held only in
// the block cache are not enumerated.
type chunkEnumerator struct {
	registry *chunkregistry.Registry
	locs     *locations
}

var _ masterconn.ChunkEnumerator = (*chunkEnumerator)(nil)

func (e *chunkEnumerator) AllChunks() []masterconn.ChunkSummary {
	chunks := e.registry.List()
	out := make([]masterconn.ChunkSummary, 0, len(chunks))
	for _, c := range chunks {
		cached := false
		if loc, ok := e.locs.get(c.Location); ok {
			cached = loc.LocationType() == location.Cache
		}
		out = append(out, masterconn.ChunkSummary{
			ID:      c.ID,
			Version: int64(c.Version()),
			Cached:  cached,
		})
	}
	return out
}
