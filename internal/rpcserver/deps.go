package rpcserver

import (
	"context"
	"time"

	"datanode/internal/chunkid"
)

// SessionWriter is the write-side of a session, matching
// internal/chunkregistry.Session's exported surface.
type SessionWriter interface {
	PutBlocks(ctx context.Context, first int, blocks [][]byte) error
	SendBlocks(ctx context.Context, first, count int, target string) error
	FlushBlocks(ctx context.Context, lastIndex int) error
	Finish(ctx context.Context, meta []byte, blockCount int) error
	Cancel(ctx context.Context, reason string) error
	Ping()
}

// SessionStore starts and looks up write sessions, matching
// internal/chunkregistry.SessionManager's exported surface.
type SessionStore interface {
	StartSession(id chunkid.ID, kind string, options map[string]string) (SessionWriter, error)
	Lookup(id chunkid.ID) (SessionWriter, bool)
	Close(id chunkid.ID)
}

// BlockSource serves reads, matching internal/blockstore.Store's
// exported surface.
type BlockSource interface {
	FindBlock(ctx context.Context, id chunkid.ID, blockIndex, priority int, enableCaching bool) ([]byte, error)
	FindBlocks(ctx context.Context, id chunkid.ID, first, count, priority int) ([][]byte, error)
	PendingReadSize() int64
	PeerHints(id chunkid.ID, blockIndex int) []string
	RecordPeerHint(id chunkid.ID, blockIndex int, addr string, ttl time.Duration)
}

// MetaSource resolves cached chunk meta, matching
// internal/chunkregistry.Registry's exported surface.
type MetaSource interface {
	ChunkMeta(id chunkid.ID, extensionTags []string, partitionTag string) ([]byte, bool)
}

// TableWork is dispatched on a dedicated worker queue for
// getTableSamples/getChunkSplits (spec §4.8).
type TableWork interface {
	Samples(ctx context.Context, id chunkid.ID, rate float64) ([][]byte, error)
	Splits(ctx context.Context, id chunkid.ID, targetSize int64) ([][]byte, error)
}

// Precacher downloads a chunk into the local cache (spec §4.8
// "precacheChunk").
type Precacher interface {
	Precache(ctx context.Context, id chunkid.ID) error
}

// ConnectionGate reports whether the master connector is online;
// validateConnected (spec §4.8) fails fast with Unavailable otherwise.
type ConnectionGate interface {
	Online() bool
}
