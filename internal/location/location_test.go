package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"datanode/internal/chunkid"
)

func validWatermarks() Watermarks {
	return Watermarks{Low: 500, High: 100, TrashCleanup: 1000}
}

func TestWatermarksValidate(t *testing.T) {
	if err := validWatermarks().Validate(); err != nil {
		t.Fatalf("Validate() on sane watermarks: %v", err)
	}
	bad := Watermarks{Low: 100, High: 500, TrashCleanup: 1000}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error when High > Low")
	}
}

func TestCategoryFor(t *testing.T) {
	cases := map[Workload]IOCategory{
		WorkloadRepair:   Repair,
		WorkloadRealtime: Realtime,
		WorkloadOther:    Batch,
	}
	for w, want := range cases {
		if got := CategoryFor(w); got != want {
			t.Fatalf("CategoryFor(%v) = %v, want %v", w, got, want)
		}
	}
}

func newTestLocation(t *testing.T) *Location {
	t.Helper()
	dir := t.TempDir()
	loc, err := New(Config{
		ID:         "loc-1",
		Path:       dir,
		Type:       Store,
		Quota:      1 << 30,
		Watermarks: validWatermarks(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return loc
}

func TestNewRejectsInvalidWatermarks(t *testing.T) {
	_, err := New(Config{
		ID:   "bad",
		Path: t.TempDir(),
		Watermarks: Watermarks{
			Low: 100, High: 500, TrashCleanup: 1000,
		},
	})
	if err == nil {
		t.Fatal("expected error for invalid watermarks")
	}
}

func TestLocationAccessors(t *testing.T) {
	loc := newTestLocation(t)

	if loc.ID() != "loc-1" {
		t.Fatalf("ID() = %q", loc.ID())
	}
	if loc.LocationType() != Store {
		t.Fatalf("LocationType() = %v, want Store", loc.LocationType())
	}
	if !loc.Enabled() {
		t.Fatal("freshly constructed location should be enabled")
	}

	loc.AddUsedSpace(128)
	if loc.UsedSpace() != 128 {
		t.Fatalf("UsedSpace() = %d, want 128", loc.UsedSpace())
	}

	loc.SetChunkCount(3)
	if loc.ChunkCount() != 3 {
		t.Fatalf("ChunkCount() = %d, want 3", loc.ChunkCount())
	}

	loc.IncrementSessionCount()
	loc.IncrementSessionCount()
	loc.DecrementSessionCount()
	if loc.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1", loc.SessionCount())
	}

	if loc.DataReadPool() == nil || loc.MetaReadPool() == nil || loc.WritePool() == nil {
		t.Fatal("expected non-nil worker pools")
	}
	loc.Stop()
}

func TestPendingIOGuardReleasesExactlyOnce(t *testing.T) {
	loc := newTestLocation(t)
	defer loc.Stop()

	guard := loc.IncreasePendingIOSize(Write, WorkloadRealtime, 64)
	if got := loc.PendingIOSize(Write, Realtime); got != 64 {
		t.Fatalf("PendingIOSize() = %d, want 64", got)
	}

	guard.Release()
	guard.Release() // idempotent
	if got := loc.PendingIOSize(Write, Realtime); got != 0 {
		t.Fatalf("PendingIOSize() after release = %d, want 0", got)
	}
}

func TestBlobAndJournalParts(t *testing.T) {
	loc := newTestLocation(t)
	defer loc.Stop()

	id := chunkid.New(chunkid.Blob, 1)
	data, meta := loc.BlobParts(id)
	wantDir := filepath.Join(loc.Path(), id.DirPrefix())
	if filepath.Dir(data) != wantDir || filepath.Dir(meta) != wantDir {
		t.Fatalf("BlobParts() = (%q, %q), want dir %q", data, meta, wantDir)
	}
	if data == meta {
		t.Fatal("data and meta paths must differ")
	}

	jData, jIndex, jSealed := loc.JournalParts(id)
	if jData == jIndex || jData == jSealed || jIndex == jSealed {
		t.Fatal("journal parts must all be distinct")
	}
}

func TestStartCreatesCellIDFileOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	loc, err := New(Config{
		ID:         "loc-2",
		Path:       dir,
		Type:       Store,
		Watermarks: validWatermarks(),
		CellID:     "cell-a",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := loc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer loc.Stop()

	data, err := os.ReadFile(filepath.Join(dir, cellIDFileName))
	if err != nil {
		t.Fatalf("read cell id file: %v", err)
	}
	if string(data) != "cell-a" {
		t.Fatalf("cell id file = %q, want cell-a", data)
	}

	if !loc.Enabled() {
		t.Fatal("location should remain enabled after a clean start")
	}
}

func TestGetAvailableSpace(t *testing.T) {
	loc := newTestLocation(t)
	defer loc.Stop()

	avail, err := loc.GetAvailableSpace()
	if err != nil {
		t.Fatalf("GetAvailableSpace: %v", err)
	}
	if avail <= 0 {
		t.Fatalf("GetAvailableSpace() = %d, want > 0 for a real tmp mount", avail)
	}
}
