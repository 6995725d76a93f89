package rpcserver

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"datanode/internal/dataerr"
	"datanode/internal/logging"
)

// Config bounds dedicated-worker concurrency and throttling limits.
type Config struct {
	TableWorkConcurrency int64
	EgressBytesPerSec    int
	EgressBurstBytes     int
	BusPendingOutLimit   int64
	DiskReadPendingLimit int64
	DefaultReadPriority  int
}

func (c Config) withDefaults() Config {
	if c.TableWorkConcurrency == 0 {
		c.TableWorkConcurrency = 4
	}
	if c.EgressBurstBytes == 0 {
		c.EgressBurstBytes = 1 << 20
	}
	return c
}

// Server implements the data-node RPC surface over the dependencies
// injected at construction (spec §4.8, C9).
type Server struct {
	cfg       Config
	sessions  SessionStore
	blocks    BlockSource
	meta      MetaSource
	tableWork TableWork
	precacher Precacher
	gate      ConnectionGate
	throttle  *Throttle
	queue     *WorkerQueue
	logger    *slog.Logger
}

// New constructs a Server over its dependencies. Any dependency left
// nil causes handlers in that area to fail with Unavailable rather than
// panic.
func New(cfg Config, sessions SessionStore, blocks BlockSource, meta MetaSource, tableWork TableWork, precacher Precacher, gate ConnectionGate, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg: cfg, sessions: sessions, blocks: blocks, meta: meta, tableWork: tableWork,
		precacher: precacher, gate: gate,
		throttle: NewThrottle(cfg.EgressBytesPerSec, cfg.EgressBurstBytes, cfg.BusPendingOutLimit, cfg.DiskReadPendingLimit),
		queue:    NewWorkerQueue(cfg.TableWorkConcurrency),
		logger:   logging.Default(logger).With("component", "rpcserver"),
	}
}

// validateConnected fails fast when the master connector is not online
// (spec §4.8 step 1).
func (s *Server) validateConnected() error {
	if s.gate != nil && !s.gate.Online() {
		return dataerr.New(dataerr.Unavailable, "master connector offline").AsRetryable()
	}
	return nil
}

func (s *Server) startChunk(ctx context.Context, req *StartChunkRequest) (*StartChunkResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.StartSession(req.ChunkID, req.Kind, req.Options); err != nil {
		return nil, err
	}
	return &StartChunkResponse{}, nil
}

func (s *Server) finishChunk(ctx context.Context, req *FinishChunkRequest) (*FinishChunkResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	if err := session.Finish(ctx, req.Meta, req.BlockCount); err != nil {
		return nil, err
	}
	s.sessions.Close(req.ChunkID)
	return &FinishChunkResponse{}, nil
}

func (s *Server) cancelChunk(ctx context.Context, req *CancelChunkRequest) (*CancelChunkResponse, error) {
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return &CancelChunkResponse{}, nil
	}
	err := session.Cancel(ctx, req.Reason)
	s.sessions.Close(req.ChunkID)
	if err != nil {
		return nil, err
	}
	return &CancelChunkResponse{}, nil
}

func (s *Server) pingSession(ctx context.Context, req *PingSessionRequest) (*PingSessionResponse, error) {
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	session.Ping()
	return &PingSessionResponse{}, nil
}

func (s *Server) putBlocks(ctx context.Context, req *PutBlocksRequest) (*PutBlocksResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	if err := session.PutBlocks(ctx, req.FirstIndex, req.Blocks); err != nil {
		return nil, err
	}
	return &PutBlocksResponse{}, nil
}

func (s *Server) sendBlocks(ctx context.Context, req *SendBlocksRequest) (*SendBlocksResponse, error) {
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	if err := session.SendBlocks(ctx, req.FirstIndex, req.Count, req.Target); err != nil {
		return nil, err
	}
	return &SendBlocksResponse{}, nil
}

func (s *Server) flushBlocks(ctx context.Context, req *FlushBlocksRequest) (*FlushBlocksResponse, error) {
	session, ok := s.sessions.Lookup(req.ChunkID)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	if err := session.FlushBlocks(ctx, req.LastIndex); err != nil {
		return nil, err
	}
	return &FlushBlocksResponse{}, nil
}

// getBlockSet fetches specific blocks in parallel, honoring the
// caching flag and recording the requester as a peer hint for every
// block asked for (spec §4.8).
func (s *Server) getBlockSet(ctx context.Context, req *GetBlockSetRequest) (*GetBlockSetResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	resp := &GetBlockSetResponse{}

	if s.throttle.ShouldThrottle(0, s.blocks.PendingReadSize()) {
		resp.Throttled = true
		resp.Peers = make(map[int][]string, len(req.BlockIndexes))
		for _, idx := range req.BlockIndexes {
			resp.Peers[idx] = s.blocks.PeerHints(req.ChunkID, idx)
		}
		return resp, nil
	}

	datas := make([][]byte, len(req.BlockIndexes))
	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range req.BlockIndexes {
		i, idx := i, idx
		g.Go(func() error {
			data, err := s.blocks.FindBlock(gctx, req.ChunkID, idx, s.cfg.DefaultReadPriority, req.EnableCaching)
			datas[i] = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp.Blocks = make(map[int][]byte, len(req.BlockIndexes))
	var total int
	for i, idx := range req.BlockIndexes {
		resp.Blocks[idx] = datas[i]
		total += len(datas[i])
		if req.RequesterAddr != "" {
			s.blocks.RecordPeerHint(req.ChunkID, idx, req.RequesterAddr, 5*time.Minute)
		}
	}
	if err := s.throttle.WaitEgress(ctx, total); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) getBlockRange(ctx context.Context, req *GetBlockRangeRequest) (*GetBlockRangeResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	resp := &GetBlockRangeResponse{}

	if s.throttle.ShouldThrottle(0, s.blocks.PendingReadSize()) {
		resp.Throttled = true
		resp.Peers = make([][]string, req.Count)
		for i := 0; i < req.Count; i++ {
			resp.Peers[i] = s.blocks.PeerHints(req.ChunkID, req.FirstIndex+i)
		}
		return resp, nil
	}

	blocks, err := s.blocks.FindBlocks(ctx, req.ChunkID, req.FirstIndex, req.Count, s.cfg.DefaultReadPriority)
	if err != nil {
		return nil, err
	}
	var total int
	for _, b := range blocks {
		total += len(b)
	}
	if err := s.throttle.WaitEgress(ctx, total); err != nil {
		return nil, err
	}
	resp.Blocks = blocks
	return resp, nil
}

func (s *Server) getChunkMeta(ctx context.Context, req *GetChunkMetaRequest) (*GetChunkMetaResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	meta, ok := s.meta.ChunkMeta(req.ChunkID, req.ExtensionTags, req.PartitionTag)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, req.ChunkID.String())
	}
	return &GetChunkMetaResponse{Meta: meta}, nil
}

func (s *Server) getTableSamples(ctx context.Context, req *GetTableSamplesRequest) (*GetTableSamplesResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	var resp *GetTableSamplesResponse
	err := s.queue.Run(ctx, func(ctx context.Context) error {
		keys, err := s.tableWork.Samples(ctx, req.ChunkID, req.SampleRate)
		if err != nil {
			return err
		}
		resp = &GetTableSamplesResponse{Keys: keys}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) getChunkSplits(ctx context.Context, req *GetChunkSplitsRequest) (*GetChunkSplitsResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	var resp *GetChunkSplitsResponse
	err := s.queue.Run(ctx, func(ctx context.Context) error {
		splits, err := s.tableWork.Splits(ctx, req.ChunkID, req.TargetSplitSize)
		if err != nil {
			return err
		}
		resp = &GetChunkSplitsResponse{SplitKeys: splits}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) precacheChunk(ctx context.Context, req *PrecacheChunkRequest) (*PrecacheChunkResponse, error) {
	if err := s.validateConnected(); err != nil {
		return nil, err
	}
	if s.precacher == nil {
		return nil, dataerr.New(dataerr.Unavailable, "precaching not configured")
	}
	if err := s.precacher.Precache(ctx, req.ChunkID); err != nil {
		return nil, err
	}
	return &PrecacheChunkResponse{}, nil
}

// updatePeer is one-way: it records a peer hint and always succeeds
// (spec §4.8).
func (s *Server) updatePeer(ctx context.Context, req *UpdatePeerRequest) (*UpdatePeerResponse, error) {
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s.blocks.RecordPeerHint(req.ChunkID, req.BlockIndex, req.PeerAddr, ttl)
	return &UpdatePeerResponse{}, nil
}
