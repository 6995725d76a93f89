package memory

import (
	"context"
	"testing"

	"datanode/internal/config"
)

func TestLoadOnEmptyStoreReturnsNil(t *testing.T) {
	s := New()
	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New()
	want := config.DefaultConfig()
	want.NodeID = "node-a"
	want.Cells = []config.CellConfig{{Tag: 1, Addresses: []string{"cell-1:9000"}}}

	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.NodeID != want.NodeID || len(got.Cells) != 1 || got.Cells[0].Tag != 1 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoadReturnsIndependentCopy(t *testing.T) {
	s := New()
	want := config.DefaultConfig()
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got.Locations[0].Path = "/mutated"

	again, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.Locations[0].Path == "/mutated" {
		t.Fatalf("mutation of returned config leaked into store")
	}
}
