package tablereader

import "bytes"

// KeyRange is a half-open [Lower, Upper) row-key range; an empty Upper
// means "no upper bound".
type KeyRange struct {
	Lower Key
	Upper Key
}

// RangeCache performs the cache-based range-scan path (spec §4.4.2)
// against a single chunk, scanning ranges in input order; each range
// starts from its own binary search of the block-last-key array.
type RangeCache struct {
	meta   ChunkMeta
	source BlockSource
}

// NewRangeCache constructs a range path over meta and source.
func NewRangeCache(meta ChunkMeta, source BlockSource) *RangeCache {
	return &RangeCache{meta: meta, source: source}
}

// Scan emits every row in ranges, in range order, calling emit for each.
// emit returning an error stops the scan early and the error
// propagates.
func (r *RangeCache) Scan(ranges []KeyRange, opts ReadOptions, emit func(Row) error) error {
	for _, rg := range ranges {
		if err := r.scanOne(rg, opts, emit); err != nil {
			return err
		}
	}
	return nil
}

func (r *RangeCache) scanOne(rg KeyRange, opts ReadOptions, emit func(Row) error) error {
	blockIndex, ok := findBlock(r.meta.BlockLastKeys, rg.Lower)
	if !ok {
		return nil
	}
	rowIndex := 0

	upperBoundCheckNeeded := len(rg.Upper) > 0 && bytes.Compare(r.meta.BlockLastKeys[blockIndex], rg.Upper) >= 0

	for {
		block, cached := r.source.CachedBlock(blockIndex)
		if !cached {
			return nil
		}
		n := block.RowCount()

		start := rowIndex
		if blockIndex == mustFindBlock(r.meta.BlockLastKeys, rg.Lower) {
			start = seekRow(block, rg.Lower)
		}

		for i := start; i < n; i++ {
			key := block.KeyAt(i)
			if upperBoundCheckNeeded && len(rg.Upper) > 0 && bytes.Compare(key, rg.Upper) >= 0 {
				return nil
			}
			cells := mergeCells(block.CellsAt(i), opts)
			if err := emit(Row{Key: key, Cells: cells}); err != nil {
				return err
			}
		}

		blockIndex++
		rowIndex = 0
		if blockIndex >= len(r.meta.BlockLastKeys) {
			return nil
		}
		upperBoundCheckNeeded = len(rg.Upper) > 0 && bytes.Compare(r.meta.BlockLastKeys[blockIndex], rg.Upper) >= 0
	}
}

func mustFindBlock(lastKeys []Key, key Key) int {
	idx, ok := findBlock(lastKeys, key)
	if !ok {
		return len(lastKeys)
	}
	return idx
}

func seekRow(block BlockRows, key Key) int {
	n := block.RowCount()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(block.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
