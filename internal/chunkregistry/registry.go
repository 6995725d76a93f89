package chunkregistry

import (
	"log/slog"
	"sync"

	"datanode/internal/chunkid"
	"datanode/internal/dataerr"
	"datanode/internal/logging"
)

// Registry is the global chunk lookup table (spec §4.5/§6, component
// C6). It enforces the no-duplicate-chunk invariant jointly with
// SessionManager.
type Registry struct {
	mu     sync.RWMutex
	chunks map[chunkid.ID]*Chunk
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		chunks: make(map[chunkid.ID]*Chunk),
		logger: logging.Default(logger).With("component", "chunk-registry"),
	}
}

// Lookup returns the chunk for id, or false if absent.
func (r *Registry) Lookup(id chunkid.ID) (*Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	return c, ok
}

// Register adds a chunk to the registry. Fails with ChunkAlreadyExists
// if a chunk with this id is already registered.
func (r *Registry) Register(c *Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chunks[c.ID]; exists {
		return dataerr.New(dataerr.ChunkAlreadyExists, c.ID.String())
	}
	r.chunks[c.ID] = c
	return nil
}

// Unregister removes a chunk from the registry, typically called once
// its removal promise has fulfilled (state Removed).
func (r *Registry) Unregister(id chunkid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, id)
}

// Has reports whether id is currently registered, without taking a read
// lock on the chunk itself.
func (r *Registry) Has(id chunkid.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chunks[id]
	return ok
}

// List returns a snapshot slice of all registered chunks.
func (r *Registry) List() []*Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Chunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered chunks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// ScheduleRemove looks up id, schedules its removal, and unregisters it
// from the map once the removal completes (in a background goroutine),
// so that List/Lookup stop observing the chunk only after the physical
// remove has actually started, matching scenario 2 of spec §8
// ("Future fulfils; chunk no longer in registry").
func (r *Registry) ScheduleRemove(id chunkid.ID) (<-chan struct{}, error) {
	c, ok := r.Lookup(id)
	if !ok {
		return nil, dataerr.New(dataerr.NoSuchChunk, id.String())
	}
	done := c.ScheduleRemove()
	go func() {
		<-done
		r.Unregister(id)
		if err := c.RemoveErr(); err != nil {
			r.logger.Error("chunk removal failed", "chunk", id.String(), "error", err)
		} else {
			r.logger.Debug("chunk removed", "chunk", id.String())
		}
	}()
	return done, nil
}
