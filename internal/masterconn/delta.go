package masterconn

import (
	"sync"

	"datanode/internal/chunkid"
)

// delta is one cell's pending chunk-added/chunk-removed set, keyed by
// the chunk's cell tag, accumulated between successful incremental
// heartbeats (spec §4.7).
type delta struct {
	mu      sync.Mutex
	added   map[chunkid.ID]int64 // chunk id -> version at time of add
	removed map[chunkid.ID]bool
}

func newDelta() *delta {
	return &delta{added: make(map[chunkid.ID]int64), removed: make(map[chunkid.ID]bool)}
}

// recordAdded captures a chunk-added event.
func (d *delta) recordAdded(id chunkid.ID, version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.removed, id)
	d.added[id] = version
}

// recordRemoved captures a chunk-removed event.
func (d *delta) recordRemoved(id chunkid.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.added, id)
	d.removed[id] = true
}

// snapshot returns the current added/removed sets without clearing
// them — clearing only happens once the heartbeat that carried them
// succeeds (via settle).
func (d *delta) snapshot() (added map[chunkid.ID]int64, removed []chunkid.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addedCopy := make(map[chunkid.ID]int64, len(d.added))
	for id, v := range d.added {
		addedCopy[id] = v
	}
	removedCopy := make([]chunkid.ID, 0, len(d.removed))
	for id := range d.removed {
		removedCopy = append(removedCopy, id)
	}
	return addedCopy, removedCopy
}

// settle drops entries sent in a successful heartbeat, unless the
// chunk's current version has since changed (spec §4.7: "entries whose
// chunk version has not changed since being sent are removed from the
// delta").
func (d *delta) settle(sentAdded map[chunkid.ID]int64, sentRemoved []chunkid.ID, currentVersion func(chunkid.ID) (int64, bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, sentVersion := range sentAdded {
		cur, stillPresent := currentVersion(id)
		if stillPresent && cur == sentVersion {
			delete(d.added, id)
		}
	}
	for _, id := range sentRemoved {
		delete(d.removed, id)
	}
}
