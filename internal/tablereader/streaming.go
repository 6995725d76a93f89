package tablereader

import "context"

// StreamingRange performs the prefetching streaming range path (spec
// §4.4.3), used when the block cache is not guaranteed to hold every
// block a range touches.
type StreamingRange struct {
	meta    ChunkMeta
	fetcher *BlockFetcher
}

// NewStreamingRange constructs a streaming range path over meta,
// loading blocks through fetcher.
func NewStreamingRange(meta ChunkMeta, fetcher *BlockFetcher) *StreamingRange {
	return &StreamingRange{meta: meta, fetcher: fetcher}
}

// Scan emits rows in rg in key order. sampling, if non-nil, restricts
// the reachable block set to a deterministic sample (spec §4.4.3
// "Sampling mode").
func (s *StreamingRange) Scan(ctx context.Context, rg KeyRange, opts ReadOptions, sampling *Sampling, emit func(Row) error) error {
	lowerBlock, ok := findBlock(s.meta.BlockLastKeys, rg.Lower)
	if !ok {
		return nil
	}
	upperBlock := len(s.meta.BlockLastKeys) - 1
	if len(rg.Upper) > 0 {
		if b, ok2 := findBlock(s.meta.BlockLastKeys, rg.Upper); ok2 {
			upperBlock = b
		}
	}

	var blocks []int
	for b := lowerBlock; b <= upperBlock; b++ {
		if sampling != nil && !sampling.IncludesBlock(b) {
			continue
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil
	}

	// Issue every reachable block's load up front; BlockFetcher's window
	// semaphore bounds how many loads run concurrently. A slot is freed
	// when its load finishes, and the loaded block stays held by its
	// future until Release, so loaded blocks waiting to be consumed are
	// not counted against the window.
	futures := make([]*BlockFuture, len(blocks))
	for i, b := range blocks {
		futures[i] = s.fetcher.Fetch(ctx, b)
	}

	for i, b := range blocks {
		block, err := futures[i].Wait(ctx)
		if err != nil {
			return err
		}

		n := block.RowCount()
		start := 0
		if b == lowerBlock {
			start = seekRow(block, rg.Lower)
		}

		// hardUpperRowIndex: the first row at or beyond the range's upper
		// bound. Blocks strictly below upperBlock are already known (from
		// the block-last-key array) to lie entirely inside the range, so
		// the safeUpperRowIndex/hardUpperRowIndex split from spec §4.4.3
		// only matters on the boundary block, where it collapses to this
		// single hardUpperRowIndex check.
		end := n
		if b == upperBlock && len(rg.Upper) > 0 {
			end = seekRow(block, rg.Upper)
		}

		for row := start; row < end; row++ {
			key := block.KeyAt(row)
			cells := mergeCells(block.CellsAt(row), opts)
			if err := emit(Row{Key: key, Cells: cells}); err != nil {
				s.fetcher.Release(b)
				return err
			}
		}
		s.fetcher.Release(b)
	}

	return nil
}
