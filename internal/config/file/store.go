// Package file provides a file-based config.Store implementation.
//
// Configuration is persisted as a versioned JSON envelope:
//
//	{"version": 1, "config": { ... }}
//
// Save loads nothing first: it atomically overwrites the whole file via
// temp-file-then-rename, since node config is small and loaded once at
// startup (not hot-reloaded).
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"datanode/internal/config"
)

const currentVersion = 1

type envelope struct {
	Version int            `json:"version"`
	Config  *config.Config `json:"config"`
}

// Store is a file-based config.Store implementation.
type Store struct {
	path string
}

var _ config.Store = (*Store)(nil)

// NewStore creates a Store persisting to configPath.
func NewStore(configPath string) *Store {
	return &Store{path: configPath}
}

// Load reads the configuration from disk. Returns nil, nil if the file
// does not exist.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config/file: read %s: %w", s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("config/file: parse %s: %w", s.path, err)
	}
	if env.Version > currentVersion {
		return nil, fmt.Errorf("config/file: %s has version %d, newer than supported version %d", s.path, env.Version, currentVersion)
	}
	return env.Config, nil
}

// Save atomically persists cfg, replacing whatever was there before.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config/file: create directory %s: %w", dir, err)
	}

	env := envelope{Version: currentVersion, Config: cfg}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("config/file: marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("config/file: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("config/file: rename into place: %w", err)
	}
	return nil
}
