// Package config persists and loads the data node's declarative
// configuration: locations, resource limits, master cell addresses, and
// maintenance thresholds (SPEC_FULL.md's ambient-stack expansion).
// Configuration is loaded once at startup and is not hot-reloaded,
// mirroring the teacher's config.Store: a single Load/Save seam with
// interchangeable backends (file, memory).
package config

import "context"

// Store persists and loads a Config.
type Store interface {
	// Load reads the configuration. Returns nil if none exists.
	Load(ctx context.Context) (*Config, error)
	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error
}

// LocationConfig describes one store location to instantiate (spec
// §4.1).
type LocationConfig struct {
	Path             string
	Type             string // "ssd", "hdd"
	QuotaBytes       int64
	LowWatermarkPct  float64
	HighWatermarkPct float64
	Archival         ArchivalConfig
}

// ArchivalConfig configures an optional cold-storage mirror that
// archives a location's trashed chunk parts before the TTL sweep
// purges them (spec §4.1's archival mirror hook). An empty Provider
// disables archival for the location.
type ArchivalConfig struct {
	Provider        string // "", "s3"
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// ResourceLimits bounds the job controller's hard-limited resources
// (spec §4.6).
type ResourceLimits struct {
	MemoryBytes int64
	CPUCores    float64
}

// CellConfig names one master cell this node registers with (spec
// §4.7).
type CellConfig struct {
	Tag       uint16
	Addresses []string
}

// Thresholds holds the node's maintenance and throttling knobs (spec
// §4.1, §4.8).
type Thresholds struct {
	TrashTTLSeconds          int64
	HealthCheckTimeoutMillis int64
	BusPendingOutLimit       int64
	DiskReadPendingLimit     int64
	EgressBytesPerSec        int64
}

// Config is the data node's full declarative configuration.
type Config struct {
	NodeID     string
	RPCAddr    string
	Locations  []LocationConfig
	Limits     ResourceLimits
	Cells      []CellConfig
	Thresholds Thresholds
}
