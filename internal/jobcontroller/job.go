// Package jobcontroller implements the job controller (spec §4.6, C7):
// admission against resource limits with overdraft tolerance for the
// data-movement resources, a waiting-job timeout, a periodic overdraft
// check, port allocation, and the heartbeat plumbing the master
// connector folds job statuses into.
package jobcontroller

import "time"

// State is a job's lifecycle state.
type State int

const (
	Waiting State = iota
	Running
	Done
	Failed
	Aborted
	Interrupted
	Stored
	Removed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	case Interrupted:
		return "interrupted"
	case Stored:
		return "stored"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	switch s {
	case Done, Failed, Aborted, Interrupted, Stored, Removed:
		return true
	default:
		return false
	}
}

// Spec is the immutable description of a job, as handed down by the
// master (inline) or fetched from a controller-agent address.
type Spec struct {
	ID          string
	Kind        string
	Resources   Resource
	PortCount   int
	AgentAddr   string // non-empty if the spec must be fetched remotely
	Payload     []byte // opaque inline spec
}

// Job is one admitted or waiting unit of work tracked by the
// controller.
type Job struct {
	ID        string
	Kind      string
	Resources Resource
	PortCount int
	Ports     []int

	State    State
	Phase    string
	Progress float64
	Result   string
	Stats    map[string]int64

	StartTime time.Time
	Cancel    func()
}

// Status is the heartbeat-facing projection of a job (spec §4.6
// "Heartbeat plumbing").
type Status struct {
	JobID    string
	State    State
	Phase    string
	Progress float64
	Usage    Resource // included only while Running
	Result   string   // included only on terminal states
	Stats    map[string]int64
}

func (j *Job) status() Status {
	st := Status{JobID: j.ID, State: j.State, Phase: j.Phase, Progress: j.Progress}
	if j.State == Running {
		st.Usage = j.Resources
	}
	if j.State.Terminal() {
		st.Result = j.Result
		st.Stats = j.Stats
	}
	return st
}
