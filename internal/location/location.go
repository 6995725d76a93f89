// Package location implements the per-mount-point location manager (spec
// §4.1, component C1): chunk file ownership, pending-I/O accounting,
// trash with TTL, health probing, and self-disabling on unrecoverable
// faults.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
	"datanode/internal/invoker"
	"datanode/internal/logging"
)

// Type distinguishes a persistent store location from a cache location
// (spec §3).
type Type int

const (
	Store Type = iota
	Cache
)

// IODirection is the axis of the pending-I/O accounting table.
type IODirection int

const (
	Read IODirection = iota
	Write
)

// IOCategory is the workload-derived axis of the pending-I/O accounting
// table (spec §4.1: "workload category maps to I/O category via a fixed
// table").
type IOCategory int

const (
	Realtime IOCategory = iota
	Batch
	Repair
)

// Workload is the caller-supplied classification that CategoryFor maps
// to an IOCategory.
type Workload int

const (
	WorkloadRealtime Workload = iota
	WorkloadRepair
	WorkloadOther
)

// CategoryFor implements the fixed workload -> category table: repair ->
// Repair; realtime -> Realtime; all else -> Batch.
func CategoryFor(w Workload) IOCategory {
	switch w {
	case WorkloadRepair:
		return Repair
	case WorkloadRealtime:
		return Realtime
	default:
		return Batch
	}
}

// Watermarks governs trash cleanup and reports the invariant high <=
// low <= trashCleanup (spec §3).
type Watermarks struct {
	Low          int64
	High         int64
	TrashCleanup int64
}

func (w Watermarks) Validate() error {
	if !(w.High <= w.Low && w.Low <= w.TrashCleanup) {
		return fmt.Errorf("location: invalid watermarks (need high<=low<=trashCleanup): %+v", w)
	}
	return nil
}

// Descriptor is a chunk descriptor as produced by Scan (spec §3).
type Descriptor struct {
	ID        chunkid.ID
	DiskSpace int64
	RowCount  int64
	Sealed    bool
}

// ArchivalMirror is an optional cold-storage backend that mirrors
// trashed chunk parts before they are finally purged by the TTL sweep.
// It does not participate in the cross-restart state invariant (spec
// §6) since it is an external system.
type ArchivalMirror interface {
	Upload(ctx context.Context, id chunkid.ID, parts map[string][]byte) error
}

// Config configures a Location.
type Config struct {
	ID            string
	Path          string
	Type          Type
	Quota         int64
	Watermarks    Watermarks
	MaxTrashTTL    time.Duration
	TrashCheckPeriod time.Duration
	CellID        string
	IgnoreGlobs   []string
	Archival      ArchivalMirror
	Now           func() time.Time
	Logger        *slog.Logger

	DataReadWorkers int
	WritePoolWorkers int
}

const (
	trashDirName    = "trash"
	cellIDFileName  = "cell_id"
	disabledFileName = "disabled"
	healthProbeName  = "health_check~"
)

// Location owns one storage mount (spec §3, §4.1).
type Location struct {
	cfg Config
	now func() time.Time

	enabled        atomic.Bool
	usedSpace      atomic.Int64
	availableSpace atomic.Int64
	sessionCount   atomic.Int32
	chunkCount     atomic.Int32

	pendingIO [2][3]atomic.Int64 // [IODirection][IOCategory]

	trashMu        sync.Mutex
	trash          []trashEntry // time-ordered, oldest first
	trashDiskSpace atomic.Int64

	disableOnce sync.Once
	disableErr  error
	disableCh   chan struct{}

	scheduler gocron.Scheduler

	dataRead *invoker.Pool
	metaRead *invoker.Pool
	write    *invoker.Pool

	logger *slog.Logger
}

type trashEntry struct {
	ChunkID   chunkid.ID
	DiskSpace int64
	Timestamp time.Time
	Parts     []string
}

// New constructs a Location. It does not scan or start background tasks;
// call Start for that.
func New(cfg Config) (*Location, error) {
	if err := cfg.Watermarks.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxTrashTTL <= 0 {
		cfg.MaxTrashTTL = 24 * time.Hour
	}
	if cfg.TrashCheckPeriod <= 0 {
		cfg.TrashCheckPeriod = 10 * time.Second
	}
	if cfg.DataReadWorkers <= 0 {
		cfg.DataReadWorkers = 4
	}
	if cfg.WritePoolWorkers <= 0 {
		cfg.WritePoolWorkers = 2
	}

	l := &Location{
		cfg:       cfg,
		now:       cfg.Now,
		disableCh: make(chan struct{}),
		logger:    logging.Default(cfg.Logger).With("component", "location", "location_id", cfg.ID),
		dataRead:  invoker.NewPool(cfg.DataReadWorkers),
		metaRead:  invoker.NewPool(1),
		write:     invoker.NewPool(cfg.WritePoolWorkers),
	}
	l.enabled.Store(true)

	if _, err := os.Stat(filepath.Join(cfg.Path, disabledFileName)); err == nil {
		l.enabled.Store(false)
		l.logger.Warn("location starting disabled: lock file present")
	}

	return l, nil
}

// Enabled reports whether the location currently accepts work.
func (l *Location) Enabled() bool { return l.enabled.Load() }

// Done returns a channel closed when the location is disabled.
func (l *Location) Done() <-chan struct{} { return l.disableCh }

// ID returns the location's configured id.
func (l *Location) ID() string { return l.cfg.ID }

// LocationType returns whether this is a persistent Store location or a
// Cache location.
func (l *Location) LocationType() Type { return l.cfg.Type }

// Path returns the mount point path.
func (l *Location) Path() string { return l.cfg.Path }

// UsedSpace returns the last-known used bytes.
func (l *Location) UsedSpace() int64 { return l.usedSpace.Load() }

// AvailableSpace returns the last-known available bytes.
func (l *Location) AvailableSpace() int64 { return l.availableSpace.Load() }

// ChunkCount returns the number of chunks this location currently owns,
// as tracked by SetChunkCount.
func (l *Location) ChunkCount() int32 { return l.chunkCount.Load() }

// SetChunkCount lets the registry report the owned chunk count back to
// the location for statistics purposes.
func (l *Location) SetChunkCount(n int32) { l.chunkCount.Store(n) }

// SessionCount returns the number of active write sessions against this
// location.
func (l *Location) SessionCount() int32 { return l.sessionCount.Load() }

// IncrementSessionCount / DecrementSessionCount track active sessions.
func (l *Location) IncrementSessionCount() { l.sessionCount.Add(1) }
func (l *Location) DecrementSessionCount() { l.sessionCount.Add(-1) }

// DataReadPool, MetaReadPool, WritePool expose the location's three
// invokers (spec §4.1, §5).
func (l *Location) DataReadPool() *invoker.Pool { return l.dataRead }
func (l *Location) MetaReadPool() *invoker.Pool { return l.metaRead }
func (l *Location) WritePool() *invoker.Pool    { return l.write }

// PendingIOGuard decrements a pending-I/O counter exactly once, on
// Release (spec §4.1 "returns a scoped handle that on destruction
// decrements the counter").
type PendingIOGuard struct {
	counter *atomic.Int64
	n       int64
	once    sync.Once

	locationID string
	direction  IODirection
	category   IOCategory
}

// Release returns the accounted bytes to the counter.
func (g *PendingIOGuard) Release() {
	g.once.Do(func() {
		g.counter.Add(-g.n)
		recordPendingIODelta(g.locationID, g.direction, g.category, -g.n)
	})
}

// IncreasePendingIOSize accounts n bytes of pending I/O for the given
// direction/workload and returns a guard that releases it (spec §4.1).
func (l *Location) IncreasePendingIOSize(direction IODirection, workload Workload, n int64) *PendingIOGuard {
	cat := CategoryFor(workload)
	counter := &l.pendingIO[direction][cat]
	counter.Add(n)
	recordPendingIODelta(l.cfg.ID, direction, cat, n)
	return &PendingIOGuard{counter: counter, n: n, locationID: l.cfg.ID, direction: direction, category: cat}
}

// PendingIOSize returns the current pending I/O size for a
// direction/category pair.
func (l *Location) PendingIOSize(direction IODirection, category IOCategory) int64 {
	return l.pendingIO[direction][category].Load()
}

// GetAvailableSpace refreshes usedSpace/availableSpace from the
// filesystem (statfs), deducting usedSpace over quota and adding back
// reclaimable trash space (spec §4.1). Failure disables the location.
func (l *Location) GetAvailableSpace() (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(l.cfg.Path, &stat); err != nil {
		werr := dataerr.Wrap(dataerr.IOError, "statfs failed", err)
		l.Disable(werr)
		return 0, werr
	}

	fsAvail := int64(stat.Bavail) * int64(stat.Bsize) //nolint:gosec // statfs fields are unsigned but bounded by real disk sizes
	quotaAvail := fsAvail
	if l.cfg.Quota > 0 {
		used := l.usedSpace.Load()
		quotaAvail = l.cfg.Quota - used
		if quotaAvail > fsAvail {
			quotaAvail = fsAvail
		}
	}

	avail := quotaAvail + l.trashDiskSpace.Load()
	l.availableSpace.Store(avail)
	return avail, nil
}

// AddUsedSpace adjusts the tracked used-space counter (called as chunks
// are written or removed).
func (l *Location) AddUsedSpace(delta int64) {
	l.usedSpace.Add(delta)
}

// Disable is idempotent: the first caller flips the enabled flag,
// records the error, writes it to the lock file, and terminates the
// process (spec §4.1 "Disable protocol"). Concurrent callers return
// immediately without re-running the protocol, matching "the process is
// going away."
func (l *Location) Disable(err error) {
	l.disableOnce.Do(func() {
		l.enabled.Store(false)
		l.disableErr = err
		l.logger.Error("location disabled, terminating process", "error", err)
		l.writeDisabledFile(err)
		close(l.disableCh)
		go func() {
			time.Sleep(100 * time.Millisecond) // let logs/heartbeat flush
			os.Exit(1)
		}()
	})
}

func (l *Location) writeDisabledFile(cause error) {
	path := filepath.Join(l.cfg.Path, disabledFileName)
	doc := fmt.Sprintf("{\"error\":%q,\"time\":%q}\n", cause.Error(), l.now().Format(time.RFC3339))
	if werr := os.WriteFile(path, []byte(doc), 0o644); werr != nil {
		l.logger.Error("failed writing disabled lock file", "error", werr)
	}
}

// DisableErr returns the error that caused disable, if any.
func (l *Location) DisableErr() error { return l.disableErr }

// verifyCellID verifies the location's cell-id file matches cfg.CellID,
// or creates it on first start (spec §4.1 start()).
func (l *Location) verifyCellID() error {
	path := filepath.Join(l.cfg.Path, cellIDFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, []byte(l.cfg.CellID), 0o644)
	}
	if err != nil {
		return dataerr.Wrap(dataerr.IOError, "read cell id", err)
	}
	if string(data) != l.cfg.CellID {
		return fmt.Errorf("location: cell id mismatch: disk=%q config=%q", data, l.cfg.CellID)
	}
	return nil
}

// Start verifies/creates the cell-id file, wires the health checker's
// failure signal to Disable, and starts the trash-check and
// health-check periodic tasks (spec §4.1).
func (l *Location) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(l.cfg.Path, trashDirName), 0o755); err != nil {
		return dataerr.Wrap(dataerr.IOError, "create trash dir", err)
	}
	if err := l.verifyCellID(); err != nil {
		l.Disable(err)
		return err
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	l.scheduler = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(l.cfg.TrashCheckPeriod),
		gocron.NewTask(l.runTrashCheck),
	); err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() { l.runHealthCheck(ctx) }),
	); err != nil {
		return err
	}
	sched.Start()

	l.logger.Info("location started", "path", l.cfg.Path, "type", l.cfg.Type)
	return nil
}

// Stop shuts down the location's periodic tasks and worker pools.
func (l *Location) Stop() {
	if l.scheduler != nil {
		_ = l.scheduler.Shutdown()
	}
	l.dataRead.Stop()
	l.metaRead.Stop()
	l.write.Stop()
}
