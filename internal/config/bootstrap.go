package config

import "context"

// DefaultConfig returns the bootstrap configuration for first-run: a
// single local-disk location with conservative watermarks and no
// master cells configured yet.
func DefaultConfig() *Config {
	return &Config{
		Locations: []LocationConfig{
			{Path: "/var/lib/datanode/store0", Type: "ssd", QuotaBytes: 0, LowWatermarkPct: 0.85, HighWatermarkPct: 0.95},
		},
		Limits: ResourceLimits{MemoryBytes: 1 << 30, CPUCores: 2},
		Thresholds: Thresholds{
			TrashTTLSeconds:          7 * 24 * 3600,
			HealthCheckTimeoutMillis: 5000,
		},
		RPCAddr: ":9090",
	}
}

// Bootstrap persists the default configuration. Call this when Load
// returns nil (no config exists yet).
func Bootstrap(ctx context.Context, store Store) error {
	return store.Save(ctx, DefaultConfig())
}
