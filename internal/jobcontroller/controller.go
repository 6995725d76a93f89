package jobcontroller

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"datanode/internal/dataerr"
)

// Config bounds the controller's scheduling ticks and thresholds.
type Config struct {
	AdmissionTickPeriod time.Duration
	OverdraftTimeout    time.Duration
	WaitingJobsTimeout  time.Duration
	ReservedMemory      int64 // nrMapped budget, in the /proc/vmstat units
}

func (c Config) withDefaults() Config {
	if c.AdmissionTickPeriod == 0 {
		c.AdmissionTickPeriod = time.Second
	}
	if c.OverdraftTimeout == 0 {
		c.OverdraftTimeout = 30 * time.Second
	}
	if c.WaitingJobsTimeout == 0 {
		c.WaitingJobsTimeout = 5 * time.Minute
	}
	return c
}

// EventSink receives job lifecycle events for audit purposes (spec §12
// "Kafka-based job-event audit sink").
type EventSink interface {
	PublishJobEvent(ctx context.Context, jobID string, state State) error
}

// Controller owns every job on this node: admission, overdraft
// enforcement, waiting-job timeout, port allocation, and the heartbeat
// status/instruction surface (spec §4.6, C7).
type Controller struct {
	cfg      Config
	tracker  *Tracker
	ports    *PortAllocator
	sink     EventSink
	logger   *slog.Logger
	vmstat   VMStatReader
	scheduler gocron.Scheduler

	mu              sync.Mutex
	jobs            map[string]*Job
	overdraftSince  time.Time
}

// VMStatReader exposes the mapped-memory probe (spec §4.6: "reads
// /proc/vmstat ... if nrMapped > reservedMemory"); tests substitute a
// fake.
type VMStatReader interface {
	NrMapped() (int64, error)
}

// New constructs a Controller over limits, port range, and an optional
// event sink/vmstat reader (nil uses the real /proc/vmstat reader).
func New(cfg Config, limits Resource, portLow, portHigh int, sink EventSink, vmstat VMStatReader, logger *slog.Logger) *Controller {
	if vmstat == nil {
		vmstat = procVMStat{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg.withDefaults(),
		tracker: NewTracker(limits),
		ports:   NewPortAllocator(portLow, portHigh),
		sink:    sink,
		vmstat:  vmstat,
		logger:  logger,
		jobs:    make(map[string]*Job),
	}
}

// Start submits admitted-job-scheduling, overdraft, and waiting-timeout
// ticks to a gocron scheduler (spec §12 periodic ticks).
func (c *Controller) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	c.scheduler = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(c.cfg.AdmissionTickPeriod),
		gocron.NewTask(func() { c.admissionTick(ctx) }),
	); err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(c.cfg.AdmissionTickPeriod),
		gocron.NewTask(func() { c.overdraftTick(ctx) }),
	); err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(c.cfg.AdmissionTickPeriod),
		gocron.NewTask(c.waitingTimeoutTick),
	); err != nil {
		return err
	}

	sched.Start()
	return nil
}

// Stop halts the scheduler.
func (c *Controller) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}

// Submit adds spec as a new Waiting job.
func (c *Controller) Submit(spec Spec) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := &Job{ID: spec.ID, Kind: spec.Kind, Resources: spec.Resources, PortCount: spec.PortCount, State: Waiting, StartTime: time.Now()}
	c.jobs[spec.ID] = j
	return j
}

// admissionTick walks Waiting jobs, admitting those that fit (spec
// §4.6 "Admission").
func (c *Controller) admissionTick(ctx context.Context) {
	c.mu.Lock()
	var waiting []*Job
	for _, j := range c.jobs {
		if j.State == Waiting {
			waiting = append(waiting, j)
		}
	}
	c.mu.Unlock()

	sort.Slice(waiting, func(i, j int) bool { return waiting[i].StartTime.Before(waiting[j].StartTime) })

	for _, j := range waiting {
		ports, err := c.ports.Reserve(j.PortCount)
		if err != nil {
			continue
		}
		if !c.tracker.TryAcquire(j.Resources) {
			c.ports.Release(ports)
			continue
		}

		c.mu.Lock()
		j.Ports = ports
		j.State = Running
		c.mu.Unlock()

		c.publish(ctx, j.ID, Running)
	}
}

// overdraftTick aborts the newest jobs until usage fits, once the
// overdraft has persisted past OverdraftTimeout, and, independently,
// aborts the newest running job on each tick at which the mapped-memory
// probe reads above ReservedMemory (spec §4.6 "Overdraft").
func (c *Controller) overdraftTick(ctx context.Context) {
	if c.tracker.Overdrawn() {
		if c.overdraftSince.IsZero() {
			c.overdraftSince = time.Now()
		}
		if time.Since(c.overdraftSince) > c.cfg.OverdraftTimeout {
			c.abortNewestUntilFit(ctx)
			c.overdraftSince = time.Time{}
		}
	} else {
		c.overdraftSince = time.Time{}
	}

	if c.cfg.ReservedMemory > 0 {
		nrMapped, err := c.vmstat.NrMapped()
		if err != nil {
			c.logger.Warn("jobcontroller: read vmstat", "error", err)
			return
		}
		if nrMapped > c.cfg.ReservedMemory {
			// The tracker cannot see mapped memory, so one job goes per
			// tick; the next tick re-reads the probe.
			var newest *Job
			c.mu.Lock()
			for _, j := range c.jobs {
				if j.State == Running && (newest == nil || j.StartTime.After(newest.StartTime)) {
					newest = j
				}
			}
			c.mu.Unlock()
			if newest != nil {
				c.abort(ctx, newest, "mapped memory above reserve")
			}
		}
	}
}

func (c *Controller) abortNewestUntilFit(ctx context.Context) {
	c.mu.Lock()
	var running []*Job
	for _, j := range c.jobs {
		if j.State == Running {
			running = append(running, j)
		}
	}
	c.mu.Unlock()

	sort.Slice(running, func(i, j int) bool { return running[i].StartTime.After(running[j].StartTime) })

	for _, j := range running {
		if !c.tracker.Overdrawn() {
			return
		}
		c.abort(ctx, j, "resource overdraft")
	}
}

// waitingTimeoutTick aborts any job left Waiting past WaitingJobsTimeout
// (spec §4.6 "Waiting-job timeout").
func (c *Controller) waitingTimeoutTick() {
	c.mu.Lock()
	var expired []*Job
	for _, j := range c.jobs {
		if j.State == Waiting && time.Since(j.StartTime) > c.cfg.WaitingJobsTimeout {
			expired = append(expired, j)
		}
	}
	c.mu.Unlock()

	for _, j := range expired {
		c.abort(context.Background(), j, dataerr.WaitingJobTimeout.String())
	}
}

func (c *Controller) abort(ctx context.Context, j *Job, reason string) {
	c.finish(ctx, j, Aborted, reason)
}

// finish transitions j to a terminal state, releasing its resource and
// port claims and canceling its running work if any.
func (c *Controller) finish(ctx context.Context, j *Job, state State, reason string) {
	c.mu.Lock()
	held := j.State == Running
	j.State = state
	j.Result = reason
	c.mu.Unlock()

	if held {
		c.tracker.Release(j.Resources)
	}
	c.ports.Release(j.Ports)
	if j.Cancel != nil {
		j.Cancel()
	}
	c.publish(ctx, j.ID, state)
}

func (c *Controller) publish(ctx context.Context, jobID string, state State) {
	if c.sink == nil {
		return
	}
	if err := c.sink.PublishJobEvent(ctx, jobID, state); err != nil {
		c.logger.Warn("jobcontroller: publish job event", "job", jobID, "error", err)
	}
}

// procVMStat reads nr_mapped from /proc/vmstat.
type procVMStat struct{}

func (procVMStat) NrMapped() (int64, error) {
	data, err := os.ReadFile("/proc/vmstat")
	if err != nil {
		return 0, err
	}
	return parseNrMapped(data)
}
