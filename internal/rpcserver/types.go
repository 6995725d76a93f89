// Package rpcserver implements the data-node RPC surface (spec.md §4.8,
// component C9): session lifecycle, block reads, chunk meta, dispatched
// table work, precaching, and peer hints, gated on the master connector
// being online and shaped by an egress throttler. The wire transport is
// gRPC with the msgpack codec from internal/rpcwire in place of
// protobuf, since no .proto definitions are supplied.
package rpcserver

import "datanode/internal/chunkid"

// StartChunkRequest opens a new write session (spec §4.8, §4.5).
type StartChunkRequest struct {
	ChunkID chunkid.ID
	Kind    string // "user", "replication", "repair"
	Options map[string]string
}

type StartChunkResponse struct{}

type FinishChunkRequest struct {
	ChunkID    chunkid.ID
	BlockCount int
	Meta       []byte // encoded chunk meta, opaque to the wire layer
}

type FinishChunkResponse struct{}

type CancelChunkRequest struct {
	ChunkID chunkid.ID
	Reason  string
}

type CancelChunkResponse struct{}

type PingSessionRequest struct {
	ChunkID chunkid.ID
}

type PingSessionResponse struct{}

type PutBlocksRequest struct {
	ChunkID    chunkid.ID
	FirstIndex int
	Blocks     [][]byte
}

type PutBlocksResponse struct{}

type SendBlocksRequest struct {
	ChunkID    chunkid.ID
	FirstIndex int
	Count      int
	Target     string
}

type SendBlocksResponse struct{}

type FlushBlocksRequest struct {
	ChunkID   chunkid.ID
	LastIndex int
}

type FlushBlocksResponse struct{}

// GetBlockSetRequest fetches specific block indexes in parallel (spec
// §4.8).
type GetBlockSetRequest struct {
	ChunkID       chunkid.ID
	BlockIndexes  []int
	EnableCaching bool
	// RequesterAddr, when set, is recorded in the peer-block directory
	// against every requested block (spec §4.8 "updates the peer
	// directory with the requesting peer's self-declared address").
	RequesterAddr string
}

type GetBlockSetResponse struct {
	Blocks map[int][]byte
	// Peers, populated only when Throttled is true, lists known peers
	// for each requested block in lieu of data (spec §4.8).
	Peers     map[int][]string
	Throttled bool
}

type GetBlockRangeRequest struct {
	ChunkID       chunkid.ID
	FirstIndex    int
	Count         int
	EnableCaching bool
}

type GetBlockRangeResponse struct {
	Blocks    [][]byte
	Peers     [][]string
	Throttled bool
}

type GetChunkMetaRequest struct {
	ChunkID       chunkid.ID
	ExtensionTags []string
	PartitionTag  string
}

type GetChunkMetaResponse struct {
	Meta []byte
}

type GetTableSamplesRequest struct {
	ChunkID    chunkid.ID
	SampleRate float64
}

type GetTableSamplesResponse struct {
	Keys [][]byte
}

type GetChunkSplitsRequest struct {
	ChunkID         chunkid.ID
	TargetSplitSize int64
}

type GetChunkSplitsResponse struct {
	SplitKeys [][]byte
}

type PrecacheChunkRequest struct {
	ChunkID chunkid.ID
}

type PrecacheChunkResponse struct{}

// UpdatePeerRequest is one-way: it records a peer hint without a
// meaningful response (spec §4.8).
type UpdatePeerRequest struct {
	ChunkID    chunkid.ID
	BlockIndex int
	PeerAddr   string
	TTLSeconds int
}

type UpdatePeerResponse struct{}
