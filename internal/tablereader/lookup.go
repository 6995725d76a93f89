package tablereader

import (
	"bytes"
	"sort"
)

// BlockRows is a cache-resident, already-decompressed block's row view:
// a sorted slice of (key, cells) pairs.
type BlockRows interface {
	RowCount() int
	KeyAt(rowIndex int) Key
	CellsAt(rowIndex int) []Cell
}

// BlockSource resolves blocks from the block cache only; the
// cache-based lookup and range paths never fall through to disk (spec
// §4.4.1, §4.4.2) — a miss here means the caller should route the
// request to the streaming path instead.
type BlockSource interface {
	CachedBlock(blockIndex int) (BlockRows, bool)
}

// ChunkMeta carries the per-chunk structures the cache-based paths
// consult: the block-last-key array for binary search and, when built,
// the auxiliary lookup hash table.
type ChunkMeta struct {
	BlockLastKeys []Key
	Hash          *HashTable // nil if no hash table was built for this chunk
}

// LookupCache performs the cache-based point-lookup path (spec §4.4.1)
// against a single chunk.
type LookupCache struct {
	meta   ChunkMeta
	source BlockSource
}

// NewLookupCache constructs a lookup path over meta and source.
func NewLookupCache(meta ChunkMeta, source BlockSource) *LookupCache {
	return &LookupCache{meta: meta, source: source}
}

// Lookup resolves a single key. ok is false when the key is not present
// in the chunk (not an error — every row-less hash chain and every
// binary-search miss is a legitimate "not found").
func (l *LookupCache) Lookup(key Key, opts ReadOptions) (Row, bool, error) {
	if l.meta.Hash != nil {
		return l.lookupViaHash(key, opts)
	}
	return l.lookupViaBinarySearch(key, opts)
}

// LookupMany resolves a batch of keys in input order (spec §4.4.1
// accepts "a sorted (or unsorted) list of keys").
func (l *LookupCache) LookupMany(keys []Key, opts ReadOptions) ([]Row, error) {
	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		row, ok, err := l.Lookup(k, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (l *LookupCache) lookupViaHash(key Key, opts ReadOptions) (Row, bool, error) {
	for _, c := range l.meta.Hash.Candidates(key) {
		block, cached := l.source.CachedBlock(c.blockIndex)
		if !cached {
			continue
		}
		rowKey := block.KeyAt(c.rowIndex)
		if !bytes.Equal(rowKey, key) {
			l.meta.Hash.RecordFalsePositive()
			continue
		}
		cells := mergeCells(block.CellsAt(c.rowIndex), opts)
		return Row{Key: rowKey, Cells: cells}, true, nil
	}
	return Row{}, false, nil
}

func (l *LookupCache) lookupViaBinarySearch(key Key, opts ReadOptions) (Row, bool, error) {
	blockIndex, ok := findBlock(l.meta.BlockLastKeys, key)
	if !ok {
		return Row{}, false, nil
	}
	block, cached := l.source.CachedBlock(blockIndex)
	if !cached {
		return Row{}, false, nil
	}

	n := block.RowCount()
	i := sort.Search(n, func(i int) bool { return bytes.Compare(block.KeyAt(i), key) >= 0 })
	if i >= n || !bytes.Equal(block.KeyAt(i), key) {
		return Row{}, false, nil
	}
	cells := mergeCells(block.CellsAt(i), opts)
	return Row{Key: block.KeyAt(i), Cells: cells}, true, nil
}

// findBlock binary-searches the block-last-key array for the first
// block whose last key is >= key.
func findBlock(lastKeys []Key, key Key) (int, bool) {
	n := len(lastKeys)
	i := sort.Search(n, func(i int) bool { return bytes.Compare(lastKeys[i], key) >= 0 })
	if i >= n {
		return 0, false
	}
	return i, true
}
