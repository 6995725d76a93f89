package masterconn

import (
	"context"
	"time"

	"datanode/internal/chunkid"
	"datanode/internal/jobcontroller"
)

// ChunkSummary is one chunk's heartbeat-facing projection.
type ChunkSummary struct {
	ID      chunkid.ID
	Version int64
	Cached  bool
}

// Alert is a dynamic node-level alert surfaced in every heartbeat.
type Alert struct {
	Code    string
	Message string
	Since   time.Time
}

// RegisterRequest is sent once per cell on start.
type RegisterRequest struct {
	CellTag   uint16
	LeaseID   string
	Addresses []string
	Tags      map[string]string
	Stats     NodeStats
}

// RegisterResponse carries the server-assigned node id.
type RegisterResponse struct {
	NodeID      string
	Incarnation uint64
}

// HeartbeatRequest is either a full or incremental heartbeat.
type HeartbeatRequest struct {
	CellTag     uint16
	NodeID      string
	Incarnation uint64
	Full        bool
	Added       []ChunkSummary // incremental only
	Removed     []chunkid.ID   // incremental only
	All         []ChunkSummary // full only
	Alerts      []Alert
}

// HeartbeatResponse carries job instructions and an incarnation-mismatch
// signal.
type HeartbeatResponse struct {
	Instructions        jobcontroller.Instructions
	IncarnationMismatch bool
}

// JobHeartbeatRequest reports job statuses for one cell, round-robin
// across cells (spec §4.6/§4.7).
type JobHeartbeatRequest struct {
	CellTag  uint16
	NodeID   string
	Statuses []jobcontroller.Status
}

// NodeStats is the node-wide statistics snapshot sent at registration.
type NodeStats struct {
	CPUPercent  float64
	MemoryBytes int64
	DiskBytes   int64
}

// MasterClient is the RPC surface the connector drives; implemented
// over gRPC by GRPCClient in grpcclient.go (the wire
// framing itself is out of scope — see SPEC_FULL.md §1).
type MasterClient interface {
	AcquireLease(ctx context.Context, cellTag uint16) (leaseID string, err error)
	PingLease(ctx context.Context, cellTag uint16, leaseID string) error
	Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error)
	Heartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error)
	JobHeartbeat(ctx context.Context, req JobHeartbeatRequest) error
}
