package tablereader

import (
	"bytes"
	"container/heap"
	"context"

	"golang.org/x/sync/errgroup"
)

// VersionedReader is one sorted-order input to the overlapping-range
// merge: a store producing rows in increasing key order (spec §4.4.4).
type VersionedReader interface {
	// Next returns the reader's next row, or ok=false at EOF.
	Next(ctx context.Context) (row Row, ok bool, err error)
	// Ordinal breaks ties on identical keys/timestamps; a younger store
	// has a higher ordinal and wins.
	Ordinal() int
}

type mergeEntry struct {
	reader VersionedReader
	row    Row
}

type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return bytes.Compare(h[i].row.Key, h[j].row.Key) < 0
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(mergeEntry)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Merger performs the overlapping-range merge across readers (spec
// §4.4.4): readers are polled in parallel, rows are emitted in global
// key order, and at each distinct key a row-merger folds every
// reader's cells for that key subject to the read options.
type Merger struct {
	readers []VersionedReader
}

// NewMerger constructs a merger over readers, each already positioned at
// (or past) the scan's lower bound.
func NewMerger(readers []VersionedReader) *Merger {
	return &Merger{readers: readers}
}

// Merge emits merged rows in key order until every reader is exhausted.
func (m *Merger) Merge(ctx context.Context, opts ReadOptions, emit func(Row) error) error {
	h := make(mergeHeap, 0, len(m.readers))

	type seed struct {
		reader VersionedReader
		row    Row
		ok     bool
	}
	seeds := make([]seed, len(m.readers))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range m.readers {
		i, r := i, r
		g.Go(func() error {
			row, ok, err := r.Next(gctx)
			seeds[i] = seed{reader: r, row: row, ok: ok}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range seeds {
		if s.ok {
			heap.Push(&h, mergeEntry{reader: s.reader, row: s.row})
		}
	}

	for h.Len() > 0 {
		minKey := append(Key(nil), h[0].row.Key...)

		var group []mergeEntry
		for h.Len() > 0 && bytes.Equal(h[0].row.Key, minKey) {
			group = append(group, heap.Pop(&h).(mergeEntry))
		}

		var cells []Cell
		for _, e := range group {
			for _, c := range e.row.Cells {
				c.ReaderOrdinal = e.reader.Ordinal()
				cells = append(cells, c)
			}
		}
		merged := Row{Key: minKey, Cells: mergeCells(cells, opts)}
		if err := emit(merged); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		nexts := make([]seed, len(group))
		for i, e := range group {
			i, e := i, e
			g.Go(func() error {
				row, ok, err := e.reader.Next(gctx)
				nexts[i] = seed{reader: e.reader, row: row, ok: ok}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, s := range nexts {
			if s.ok {
				heap.Push(&h, mergeEntry{reader: s.reader, row: s.row})
			}
		}
	}

	return nil
}
