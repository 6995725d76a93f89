package blockstore

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PeerHint is one entry of the peer-block directory: a node believed to
// hold a block, with a wall-clock expiration (spec §3 "Peer-block
// directory").
type PeerHint struct {
	Node       string
	Expiration time.Time
}

// PeerDirectory maps (chunkId, blockIndex) -> set of peer hints, used
// when the local node throttles egress and redirects clients instead of
// serving the block itself (spec §4.3, §4.8).
type PeerDirectory struct {
	mu      sync.Mutex
	entries *expirable.LRU[Key, []PeerHint]
}

// NewPeerDirectory creates a directory with a default entry TTL of 5
// minutes and a bounded slot count; callers needing a different TTL per
// entry still get per-hint filtering via Expiration in Hints.
func NewPeerDirectory() *PeerDirectory {
	return &PeerDirectory{
		entries: expirable.NewLRU[Key, []PeerHint](1<<16, nil, 5*time.Minute),
	}
}

// Record adds or refreshes a peer hint for a block. ttl of zero uses the
// directory's default expiry window.
func (d *PeerDirectory) Record(key Key, node string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	exp := time.Now().Add(ttl)

	d.mu.Lock()
	defer d.mu.Unlock()

	hints, _ := d.entries.Get(key)
	replaced := false
	for i, h := range hints {
		if h.Node == node {
			hints[i].Expiration = exp
			replaced = true
			break
		}
	}
	if !replaced {
		hints = append(hints, PeerHint{Node: node, Expiration: exp})
	}
	d.entries.Add(key, hints)
}

// Hints returns the non-expired peer hints for a block.
func (d *PeerDirectory) Hints(key Key) []PeerHint {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints, ok := d.entries.Get(key)
	if !ok {
		return nil
	}
	now := time.Now()
	out := make([]PeerHint, 0, len(hints))
	for _, h := range hints {
		if h.Expiration.After(now) {
			out = append(out, h)
		}
	}
	return out
}
