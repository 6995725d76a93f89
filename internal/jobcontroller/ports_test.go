package jobcontroller

import "testing"

func TestPortAllocatorReserveAndRelease(t *testing.T) {
	a := NewPortAllocator(9000, 9002) // 3 ports

	first, err := a.Reserve(2)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(first))
	}

	if _, err := a.Reserve(2); err == nil {
		t.Fatal("expected failure reserving 2 more ports with only 1 free")
	}

	a.Release(first)
	second, err := a.Reserve(3)
	if err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
	if len(second) != 3 {
		t.Fatalf("expected 3 ports, got %d", len(second))
	}
}

func TestPortAllocatorReserveZero(t *testing.T) {
	a := NewPortAllocator(9000, 9000)
	ports, err := a.Reserve(0)
	if err != nil {
		t.Fatalf("Reserve(0): %v", err)
	}
	if ports != nil {
		t.Fatalf("expected nil ports for count 0, got %v", ports)
	}
}
