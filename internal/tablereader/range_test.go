package tablereader

import "testing"

func TestRangeCacheScanAcrossBlocks(t *testing.T) {
	meta, source := buildFixture()
	rc := NewRangeCache(meta, source)

	var got []string
	err := rc.Scan([]KeyRange{{Lower: []byte("b"), Upper: []byte("e")}}, ReadOptions{}, func(r Row) error {
		got = append(got, string(r.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRangeCacheMultipleRangesInOrder(t *testing.T) {
	meta, source := buildFixture()
	rc := NewRangeCache(meta, source)

	var got []string
	err := rc.Scan([]KeyRange{
		{Lower: []byte("a"), Upper: []byte("b")},
		{Lower: []byte("e"), Upper: nil},
	}, ReadOptions{}, func(r Row) error {
		got = append(got, string(r.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"a", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRangeCacheStopsOnUncachedBlock(t *testing.T) {
	meta, source := buildFixture()
	source.uncached = map[int]bool{1: true}
	rc := NewRangeCache(meta, source)

	var got []string
	err := rc.Scan([]KeyRange{{Lower: []byte("a"), Upper: nil}}, ReadOptions{}, func(r Row) error {
		got = append(got, string(r.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected scan to stop at the uncached block, got %v", got)
	}
}
