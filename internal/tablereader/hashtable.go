package tablereader

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// fingerprint is the lookup hash table's key hash (spec §4.4.1 names
// FarmFingerprint; no FarmHash port exists in the corpus, so this keys
// off the xxhash already wired for checksums elsewhere in the tree —
// see DESIGN.md).
func fingerprint(key Key) uint64 { return xxhash.Sum64(key) }

type hashEntry struct {
	used        bool
	fingerprint uint64
	blockIndex  int32
	rowIndex    int32
}

// HashTable is the per-chunk auxiliary lookup structure: a linear-probe
// open-addressing table mapping fingerprint(key) to (blockIndex,
// rowIndex), built once per chunk at load time (spec §4.4.1).
type HashTable struct {
	entries []hashEntry
	mask    uint64

	falsePositives atomic.Uint64
}

// NewHashTable allocates a table sized for rowCount entries at a load
// factor of 0.5 (power-of-two capacity for fast masking).
func NewHashTable(rowCount int) *HashTable {
	cap := 8
	for cap < rowCount*2 {
		cap *= 2
	}
	return &HashTable{entries: make([]hashEntry, cap), mask: uint64(cap - 1)}
}

// Insert records key at (blockIndex, rowIndex), probing linearly past
// occupied slots.
func (h *HashTable) Insert(key Key, blockIndex, rowIndex int) {
	fp := fingerprint(key)
	slot := fp & h.mask
	for h.entries[slot].used {
		slot = (slot + 1) & h.mask
	}
	h.entries[slot] = hashEntry{
		used:        true,
		fingerprint: fp,
		blockIndex:  int32(blockIndex), //nolint:gosec // block counts bounded well under 2^31
		rowIndex:    int32(rowIndex),   //nolint:gosec // row counts bounded well under 2^31
	}
}

// candidate is one (blockIndex, rowIndex) slot whose fingerprint matched
// the probed key's fingerprint — it may still be a different key (a
// hash collision, counted as a false positive by the caller once it
// fails the byte-for-byte comparison).
type candidate struct {
	blockIndex int
	rowIndex   int
}

// Candidates returns every slot in key's probe chain whose stored
// fingerprint matches, stopping at the first empty slot (the chain's
// end, since Insert never leaves a gap before its target).
func (h *HashTable) Candidates(key Key) []candidate {
	fp := fingerprint(key)
	slot := fp & h.mask
	var out []candidate
	for h.entries[slot].used {
		e := h.entries[slot]
		if e.fingerprint == fp {
			out = append(out, candidate{blockIndex: int(e.blockIndex), rowIndex: int(e.rowIndex)})
		}
		slot = (slot + 1) & h.mask
	}
	return out
}

// RecordFalsePositive increments the hash-collision counter (spec
// §4.4.1: "False positives from the hash table ... are counted and
// exposed as a performance counter").
func (h *HashTable) RecordFalsePositive() {
	h.falsePositives.Add(1)
	recordHashFalsePositive()
}

// FalsePositives returns the cumulative false-positive count.
func (h *HashTable) FalsePositives() uint64 { return h.falsePositives.Load() }
