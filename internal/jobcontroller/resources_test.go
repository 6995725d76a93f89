package jobcontroller

import "testing"

func TestTrackerHardLimitsEnforced(t *testing.T) {
	tr := NewTracker(Resource{Memory: 100, CPU: 10})

	if !tr.TryAcquire(Resource{Memory: 60, CPU: 5}) {
		t.Fatal("expected first acquire to fit")
	}
	if tr.TryAcquire(Resource{Memory: 60, CPU: 5}) {
		t.Fatal("expected second acquire to exceed memory limit")
	}
}

func TestTrackerUnboundedOverdraftForDataSize(t *testing.T) {
	tr := NewTracker(Resource{Memory: 10, CPU: 10})

	// ReplicationDataSize/RepairDataSize are exempt from the hard limit.
	if !tr.TryAcquire(Resource{ReplicationDataSize: 1 << 40}) {
		t.Fatal("expected replication data size to bypass hard limits")
	}
	if !tr.TryAcquire(Resource{RepairDataSize: 1 << 40}) {
		t.Fatal("expected repair data size to bypass hard limits")
	}
}

func TestTrackerReleaseFreesCapacity(t *testing.T) {
	tr := NewTracker(Resource{Memory: 100})
	want := Resource{Memory: 60}
	if !tr.TryAcquire(want) {
		t.Fatal("expected acquire to succeed")
	}
	tr.Release(want)
	if tr.Used().Memory != 0 {
		t.Fatalf("expected usage to return to zero, got %+v", tr.Used())
	}
}

func TestTrackerOverdrawn(t *testing.T) {
	tr := NewTracker(Resource{Memory: 100})
	tr.used.Memory = 150
	if !tr.Overdrawn() {
		t.Fatal("expected tracker to report overdrawn")
	}
}
