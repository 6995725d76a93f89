package chunkregistry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
	"datanode/internal/logging"
)

// SessionType distinguishes who opened a write session (spec §3).
type SessionType int

const (
	UserSession SessionType = iota
	ReplicationSession
	RepairSession
)

// SessionState is the session's lifecycle state (spec §3).
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionWriting
	SessionFinishing
	SessionClosed
	SessionCancelled
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "Open"
	case SessionWriting:
		return "Writing"
	case SessionFinishing:
		return "Finishing"
	case SessionClosed:
		return "Closed"
	case SessionCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Writer is the write-side of a chunk body (blob or journal), supplied
// by internal/chunkbody. Kept as an interface here to avoid a dependency
// cycle between chunkregistry and chunkbody.
type Writer interface {
	PutBlocks(ctx context.Context, first int, blocks [][]byte) error
	SendBlocks(ctx context.Context, first, count int, target string) error
	FlushBlocks(ctx context.Context, lastIndex int) error
	Finish(ctx context.Context, meta *Meta, blockCount int) error
	Cancel(ctx context.Context, reason string) error
}

// Session is the stateful write pipeline for one new chunk (spec §3,
// §4.5).
type Session struct {
	ChunkID chunkid.ID
	Type    SessionType
	Options map[string]string

	mu                sync.Mutex
	state             SessionState
	pendingWriteBytes int64
	lastActivity      time.Time
	writer            Writer
	idleTimeout       time.Duration
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingWriteBytes returns bytes accepted but not yet flushed.
func (s *Session) PendingWriteBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingWriteBytes
}

func (s *Session) idle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed || s.state == SessionCancelled {
		return false
	}
	return s.idleTimeout > 0 && now.Sub(s.lastActivity) > s.idleTimeout
}

// PutBlocks writes blocks starting at index first. Within one session,
// results observe program order (spec §5).
func (s *Session) PutBlocks(ctx context.Context, first int, blocks [][]byte) error {
	s.mu.Lock()
	if s.state != SessionOpen && s.state != SessionWriting {
		s.mu.Unlock()
		return dataerr.New(dataerr.PipelineFailed, "session not writable")
	}
	s.state = SessionWriting
	var size int64
	for _, b := range blocks {
		size += int64(len(b))
	}
	s.pendingWriteBytes += size
	s.mu.Unlock()
	s.touch()

	return s.writer.PutBlocks(ctx, first, blocks)
}

// SendBlocks forwards already-written blocks to a downstream peer
// (tree-push replication, spec §4.5).
func (s *Session) SendBlocks(ctx context.Context, first, count int, target string) error {
	s.touch()
	if err := s.writer.SendBlocks(ctx, first, count, target); err != nil {
		return dataerr.Wrap(dataerr.PipelineFailed, "send to "+target, err)
	}
	return nil
}

// FlushBlocks flushes buffered writes through lastIndex and releases the
// corresponding pending-write accounting.
func (s *Session) FlushBlocks(ctx context.Context, lastIndex int) error {
	s.touch()
	if err := s.writer.FlushBlocks(ctx, lastIndex); err != nil {
		return err
	}
	s.mu.Lock()
	s.pendingWriteBytes = 0
	s.mu.Unlock()
	return nil
}

// Finish commits the chunk's meta, transitioning Writing -> Finishing ->
// Closed.
func (s *Session) Finish(ctx context.Context, meta *Meta, blockCount int) error {
	s.mu.Lock()
	s.state = SessionFinishing
	s.mu.Unlock()

	err := s.writer.Finish(ctx, meta, blockCount)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = SessionCancelled
		return err
	}
	s.state = SessionClosed
	s.pendingWriteBytes = 0
	return nil
}

// Cancel aborts the session and releases pending-write accounting
// (spec §4.5).
func (s *Session) Cancel(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state == SessionClosed || s.state == SessionCancelled {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionCancelled
	s.pendingWriteBytes = 0
	s.mu.Unlock()
	return s.writer.Cancel(ctx, reason)
}

// Ping keeps the session alive against the idle timeout.
func (s *Session) Ping() {
	s.touch()
}

// SessionManager owns active write sessions keyed by chunk id (spec
// §4.5, component C6).
type SessionManager struct {
	registry    *Registry
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[chunkid.ID]*Session

	scheduler gocron.Scheduler
}

// NewSessionManager creates a SessionManager that enforces the
// no-duplicate-session / no-duplicate-chunk invariant jointly against
// registry.
func NewSessionManager(registry *Registry, idleTimeout time.Duration, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		registry:    registry,
		idleTimeout: idleTimeout,
		sessions:    make(map[chunkid.ID]*Session),
		logger:      logging.Default(logger).With("component", "session-manager"),
	}
}

// StartSession opens a new write session for id. Fails if a session or
// a finished chunk with that id already exists (spec §4.5).
func (m *SessionManager) StartSession(id chunkid.ID, typ SessionType, options map[string]string, writer Writer) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, dataerr.New(dataerr.SessionAlreadyExists, id.String())
	}
	if m.registry.Has(id) {
		return nil, dataerr.New(dataerr.ChunkAlreadyExists, id.String())
	}

	s := &Session{
		ChunkID:      id,
		Type:         typ,
		Options:      options,
		state:        SessionOpen,
		lastActivity: time.Now(),
		writer:       writer,
		idleTimeout:  m.idleTimeout,
	}
	m.sessions[id] = s
	return s, nil
}

// Lookup returns the active session for id, if any.
func (m *SessionManager) Lookup(id chunkid.ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes a session from the active map; call after Finish or
// Cancel completes.
func (m *SessionManager) Close(id chunkid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// StartIdleSweep starts a periodic task (via the scheduler) that cancels
// sessions that have exceeded their idle timeout without a keepalive
// (spec §3 session invariant).
func (m *SessionManager) StartIdleSweep(ctx context.Context, interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	m.scheduler = s
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { m.sweepIdle(ctx) }),
	)
	if err != nil {
		return err
	}
	s.Start()
	return nil
}

// StopIdleSweep stops the idle-sweep scheduler, if running.
func (m *SessionManager) StopIdleSweep() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

func (m *SessionManager) sweepIdle(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.idle(now) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		m.logger.Warn("session idle timeout, cancelling", "chunk", s.ChunkID.String())
		_ = s.Cancel(ctx, "idle timeout")
		m.Close(s.ChunkID)
	}
}
