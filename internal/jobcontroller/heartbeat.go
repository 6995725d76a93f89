package jobcontroller

import "context"

// Instructions is what the master's heartbeat response may ask the
// controller to do (spec §4.6 "Accepts from the response").
type Instructions struct {
	Remove    []string
	Abort     []string
	Interrupt []string
	Fail      []string
	Store     []string
	Start     []Spec
}

// Statuses returns every tracked job's heartbeat projection.
func (c *Controller) Statuses() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j.status())
	}
	return out
}

// Apply executes a heartbeat response's instructions.
func (c *Controller) Apply(ctx context.Context, instr Instructions) {
	for _, id := range instr.Remove {
		c.transition(ctx, id, Removed)
	}
	for _, id := range instr.Abort {
		c.transition(ctx, id, Aborted)
	}
	for _, id := range instr.Interrupt {
		c.transition(ctx, id, Interrupted)
	}
	for _, id := range instr.Fail {
		c.transition(ctx, id, Failed)
	}
	for _, id := range instr.Store {
		c.transition(ctx, id, Stored)
	}
	for _, spec := range instr.Start {
		c.Submit(spec)
	}
}

func (c *Controller) transition(ctx context.Context, jobID string, state State) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.finish(ctx, j, state, state.String())
}
