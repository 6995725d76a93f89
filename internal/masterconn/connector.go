package masterconn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"datanode/internal/chunkid"
	"datanode/internal/jobcontroller"
)

// ChunkEnumerator reports the full set of stored and cached chunks for
// full heartbeats (spec §4.7: "enumerates every stored and every cached
// chunk").
type ChunkEnumerator interface {
	AllChunks() []ChunkSummary
}

// Config bounds the connector's registration and heartbeat cadence.
type Config struct {
	RegisterRetryPeriod time.Duration
	HeartbeatPeriod     time.Duration
	LeasePingPeriod     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RegisterRetryPeriod == 0 {
		c.RegisterRetryPeriod = 10 * time.Second
	}
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = 5 * time.Second
	}
	if c.LeasePingPeriod == 0 {
		c.LeasePingPeriod = 3 * time.Second
	}
	return c
}

// Connector is the master connector (C8): per-cell registration state
// machines, full/incremental heartbeats with delta tracking, and job
// heartbeat round-robin.
type Connector struct {
	cfg        Config
	client     MasterClient
	chunks     ChunkEnumerator
	jobs       *jobcontroller.Controller
	statsFn    func() NodeStats
	addresses  []string
	tags       map[string]string
	logger     *slog.Logger
	scheduler  gocron.Scheduler

	mu             sync.Mutex
	cells          map[uint16]*Cell
	deltas         map[uint16]*delta
	allRegistered  bool
	cellOrder      []uint16
	nextJobCellIdx int
}

// New constructs a Connector over the given cell tags/addresses.
func New(cfg Config, client MasterClient, chunks ChunkEnumerator, jobs *jobcontroller.Controller, statsFn func() NodeStats, addresses []string, tags map[string]string, logger *slog.Logger, cellAddrs map[uint16]string) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		cfg: cfg.withDefaults(), client: client, chunks: chunks, jobs: jobs,
		statsFn: statsFn, addresses: addresses, tags: tags, logger: logger,
		cells: make(map[uint16]*Cell), deltas: make(map[uint16]*delta),
	}
	for tag, addr := range cellAddrs {
		c.cells[tag] = newCell(tag, addr)
		c.deltas[tag] = newDelta()
		c.cellOrder = append(c.cellOrder, tag)
	}
	return c
}

// Start begins the registration and heartbeat loops via a gocron
// scheduler.
func (c *Connector) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	c.scheduler = sched

	for tag := range c.cells {
		tag := tag
		go c.registerLoop(ctx, tag)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(c.cfg.HeartbeatPeriod),
		gocron.NewTask(func() { c.heartbeatTick(ctx) }),
	); err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(c.cfg.HeartbeatPeriod),
		gocron.NewTask(func() { c.jobHeartbeatTick(ctx) }),
	); err != nil {
		return err
	}

	sched.Start()
	return nil
}

// Stop halts the scheduler.
func (c *Connector) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}

// Online reports whether every cell has completed registration — the
// gate the RPC surface's validateConnected() checks (spec §4.8).
func (c *Connector) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cell := range c.cells {
		if cell.State() != Online {
			return false
		}
	}
	return len(c.cells) > 0
}

// RecordChunkAdded captures a chunk-added delta event for chunk's cell
// tag.
func (c *Connector) RecordChunkAdded(id chunkid.ID, version int64) {
	c.mu.Lock()
	d, ok := c.deltas[id.CellTag()]
	c.mu.Unlock()
	if ok {
		d.recordAdded(id, version)
	}
}

// RecordChunkRemoved captures a chunk-removed delta event.
func (c *Connector) RecordChunkRemoved(id chunkid.ID) {
	c.mu.Lock()
	d, ok := c.deltas[id.CellTag()]
	c.mu.Unlock()
	if ok {
		d.recordRemoved(id)
	}
}

func (c *Connector) registerLoop(ctx context.Context, tag uint16) {
	backoff := &Backoff{Start: c.cfg.RegisterRetryPeriod, Multiplier: 2, Max: 10 * c.cfg.RegisterRetryPeriod}

	for {
		cell := c.cells[tag]
		if cell.State() == Offline {
			if err := c.registerOne(ctx, cell); err != nil {
				c.logger.Warn("masterconn: register", "cell", tag, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff.Next()):
				}
				continue
			}
			backoff.Reset()
			c.checkAllRegistered()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.LeasePingPeriod):
			if err := c.client.PingLease(ctx, tag, cell.leaseID); err != nil {
				c.logger.Warn("masterconn: lease ping failed, resetting cell", "cell", tag, "error", err)
				cell.reset()
			}
		}
	}
}

func (c *Connector) registerOne(ctx context.Context, cell *Cell) error {
	leaseID, err := c.client.AcquireLease(ctx, cell.Tag)
	if err != nil {
		return err
	}
	resp, err := c.client.Register(ctx, RegisterRequest{
		CellTag: cell.Tag, LeaseID: leaseID, Addresses: c.addresses, Tags: c.tags, Stats: c.statsFn(),
	})
	if err != nil {
		return err
	}

	cell.mu.Lock()
	cell.leaseID = leaseID
	cell.nodeID = resp.NodeID
	cell.incarnation = resp.Incarnation
	cell.state = Registered
	cell.mu.Unlock()
	return nil
}

func (c *Connector) checkAllRegistered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cell := range c.cells {
		if cell.State() != Registered && cell.State() != Online {
			return
		}
	}
	c.allRegistered = true
}

func (c *Connector) heartbeatTick(ctx context.Context) {
	c.mu.Lock()
	allReg := c.allRegistered
	c.mu.Unlock()

	for tag, cell := range c.cells {
		if cell.State() == Offline {
			continue
		}
		full := allReg && !cell.lastFullDone
		c.sendHeartbeat(ctx, tag, cell, full)
	}
}

func (c *Connector) sendHeartbeat(ctx context.Context, tag uint16, cell *Cell, full bool) {
	req := HeartbeatRequest{CellTag: tag, NodeID: cell.nodeID, Incarnation: cell.incarnation, Full: full}

	var sentAdded map[chunkid.ID]int64
	var sentRemoved []chunkid.ID
	d := c.deltas[tag]

	if full {
		req.All = c.chunks.AllChunks()
	} else {
		added, removed := d.snapshot()
		sentAdded, sentRemoved = added, removed
		for id, v := range added {
			req.Added = append(req.Added, ChunkSummary{ID: id, Version: v})
		}
		req.Removed = sentRemoved
	}

	start := time.Now()
	resp, err := c.client.Heartbeat(ctx, req)
	recordHeartbeatLatency(tag, time.Since(start), err == nil)
	if err != nil {
		c.logger.Warn("masterconn: heartbeat failed", "cell", tag, "error", err)
		return
	}
	if resp.IncarnationMismatch {
		c.logger.Warn("masterconn: incarnation mismatch, resetting cell", "cell", tag)
		cell.reset()
		return
	}

	cell.setState(Online)
	if full {
		cell.mu.Lock()
		cell.lastFullDone = true
		cell.mu.Unlock()
	} else {
		d.settle(sentAdded, sentRemoved, func(id chunkid.ID) (int64, bool) {
			for _, s := range c.chunks.AllChunks() {
				if s.ID == id {
					return s.Version, true
				}
			}
			return 0, false
		})
	}

	c.jobs.Apply(ctx, resp.Instructions)
}

// jobHeartbeatTick sends one cell's job statuses, round-robin across
// cells (spec §4.7 "a round-robin job heartbeat").
func (c *Connector) jobHeartbeatTick(ctx context.Context) {
	c.mu.Lock()
	if len(c.cellOrder) == 0 {
		c.mu.Unlock()
		return
	}
	tag := c.cellOrder[c.nextJobCellIdx%len(c.cellOrder)]
	c.nextJobCellIdx++
	cell := c.cells[tag]
	c.mu.Unlock()

	if cell.State() != Online {
		return
	}
	req := JobHeartbeatRequest{CellTag: tag, NodeID: cell.nodeID, Statuses: c.jobs.Statuses()}
	if err := c.client.JobHeartbeat(ctx, req); err != nil {
		c.logger.Warn("masterconn: job heartbeat failed", "cell", tag, "error", err)
	}
}
