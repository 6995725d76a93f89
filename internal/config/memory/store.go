// Package memory provides an in-memory config.Store implementation, used
// in tests and for nodes that run without persistent config (e.g.
// entirely flag-driven deployments).
package memory

import (
	"context"
	"sync"

	"datanode/internal/config"
)

// Store is a mutex-guarded in-memory config.Store.
type Store struct {
	mu  sync.Mutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

// New returns an empty Store. Load returns nil, nil until the first Save.
func New() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, nil
	}
	clone := *s.cfg
	clone.Locations = append([]config.LocationConfig(nil), s.cfg.Locations...)
	clone.Cells = append([]config.CellConfig(nil), s.cfg.Cells...)
	return &clone, nil
}

func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cfg
	clone.Locations = append([]config.LocationConfig(nil), cfg.Locations...)
	clone.Cells = append([]config.CellConfig(nil), cfg.Cells...)
	s.cfg = &clone
	return nil
}
