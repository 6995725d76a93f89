package jobcontroller

import (
	"fmt"
	"sync"
)

// PortAllocator is a free-list of distinct TCP ports reserved for jobs
// that declare a port count (spec §4.6 "A port-allocation step reserves
// distinct TCP ports for jobs").
type PortAllocator struct {
	mu   sync.Mutex
	free map[int]bool
}

// NewPortAllocator seeds the free list with [low, high].
func NewPortAllocator(low, high int) *PortAllocator {
	free := make(map[int]bool, high-low+1)
	for p := low; p <= high; p++ {
		free[p] = true
	}
	return &PortAllocator{free: free}
}

// Reserve claims count distinct free ports, or fails (releasing nothing,
// since it claims none) if that many aren't available.
func (a *PortAllocator) Reserve(count int) ([]int, error) {
	if count == 0 {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) < count {
		return nil, fmt.Errorf("jobcontroller: only %d ports free, need %d", len(a.free), count)
	}
	ports := make([]int, 0, count)
	for p := range a.free {
		ports = append(ports, p)
		delete(a.free, p)
		if len(ports) == count {
			break
		}
	}
	return ports, nil
}

// Release returns ports to the free list.
func (a *PortAllocator) Release(ports []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range ports {
		a.free[p] = true
	}
}
