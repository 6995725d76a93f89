// Package masterconn implements the master connector (spec §4.7, C8):
// per-cell registration over a lease, full and incremental heartbeats
// with chunk-added/removed delta tracking, incarnation tokens, and
// reset-and-reregister on lease abort / unretriable failure /
// incarnation mismatch.
package masterconn

import (
	"sync"
	"time"
)

// CellState is a cell connection's lifecycle state (spec §4.7).
type CellState int

const (
	Offline CellState = iota
	Registered
	Online
)

func (s CellState) String() string {
	switch s {
	case Offline:
		return "offline"
	case Registered:
		return "registered"
	case Online:
		return "online"
	default:
		return "unknown"
	}
}

// Cell tracks one master cell's connection state.
type Cell struct {
	Tag uint16
	Addr string

	mu               sync.Mutex
	state            CellState
	nodeID           string
	leaseID          string
	incarnation      uint64
	lastFullDone     bool
	lastIncremental  time.Time
}

func newCell(tag uint16, addr string) *Cell {
	return &Cell{Tag: tag, Addr: addr, state: Offline}
}

func (c *Cell) State() CellState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cell) setState(s CellState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// reset drops registration state and returns the cell to Offline,
// scheduling re-registration (spec §4.7 "Lease abort, unretriable RPC
// failure, or a 'mismatched incarnation' response resets the
// connector").
func (c *Cell) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Offline
	c.nodeID = ""
	c.leaseID = ""
	c.lastFullDone = false
}
