package jobcontroller

import "sync"

// Resource is the typed resource vector a job claims and the controller
// tracks usage of (spec §4.6). ReplicationDataSize and RepairDataSize
// are granted unbounded overdraft so at least one job of each kind can
// always start; Memory and CPU are hard-limited.
type Resource struct {
	Memory              int64
	CPU                 int64
	ReplicationDataSize int64
	RepairDataSize      int64
}

func (r Resource) add(o Resource) Resource {
	return Resource{
		Memory:              r.Memory + o.Memory,
		CPU:                 r.CPU + o.CPU,
		ReplicationDataSize: r.ReplicationDataSize + o.ReplicationDataSize,
		RepairDataSize:      r.RepairDataSize + o.RepairDataSize,
	}
}

func (r Resource) sub(o Resource) Resource {
	return Resource{
		Memory:              r.Memory - o.Memory,
		CPU:                 r.CPU - o.CPU,
		ReplicationDataSize: r.ReplicationDataSize - o.ReplicationDataSize,
		RepairDataSize:      r.RepairDataSize - o.RepairDataSize,
	}
}

// fitsHardLimits reports whether claiming want on top of used stays
// within limits for the hard-limited resources only (Memory, CPU);
// ReplicationDataSize/RepairDataSize are exempt (spec §4.6 "permit
// unbounded overdraft").
func fitsHardLimits(limits, used, want Resource) bool {
	return used.Memory+want.Memory <= limits.Memory && used.CPU+want.CPU <= limits.CPU
}

// Tracker is the typed resource usage tracker jobs acquire resources
// from on admission.
type Tracker struct {
	mu     sync.Mutex
	limits Resource
	used   Resource
}

// NewTracker creates a tracker bounded by limits.
func NewTracker(limits Resource) *Tracker {
	return &Tracker{limits: limits}
}

// TryAcquire admits want if it fits within the hard-limited resources;
// ReplicationDataSize/RepairDataSize are always granted.
func (t *Tracker) TryAcquire(want Resource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !fitsHardLimits(t.limits, t.used, want) {
		return false
	}
	t.used = t.used.add(want)
	recordResourceDelta(want, 1)
	return true
}

// Release returns want's claim to the pool.
func (t *Tracker) Release(want Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used = t.used.sub(want)
	recordResourceDelta(want, -1)
}

// Used returns a snapshot of current usage.
func (t *Tracker) Used() Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Overdrawn reports whether current usage exceeds limits for either
// hard-limited resource (spec §4.6 "Overdraft").
func (t *Tracker) Overdrawn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used.Memory > t.limits.Memory || t.used.CPU > t.limits.CPU
}
