package blockstore

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the OTel instrumentation scope for this package's
// metrics (spec SPEC_FULL.md §11 "block-cache hit/miss counters").
const meterName = "datanode/blockstore"

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	metricsOnce sync.Once
)

// initMetrics lazily builds the package's OTel instruments against
// whatever MeterProvider is globally installed at first use (cmd/datanode
// installs a real SDK provider at startup; tests that never call
// otel.SetMeterProvider get the no-op provider, and these counters become
// harmless no-ops).
func initMetrics() {
	meter := otel.Meter(meterName)
	cacheHits, _ = meter.Int64Counter(
		"datanode.blockstore.cache_hits",
		metric.WithDescription("Block cache lookups served without a backing read"),
	)
	cacheMisses, _ = meter.Int64Counter(
		"datanode.blockstore.cache_misses",
		metric.WithDescription("Block cache lookups that required a backing read"),
	)
}

func recordCacheHit() {
	metricsOnce.Do(initMetrics)
	if cacheHits != nil {
		cacheHits.Add(context.Background(), 1)
	}
}

func recordCacheMiss() {
	metricsOnce.Do(initMetrics)
	if cacheMisses != nil {
		cacheMisses.Add(context.Background(), 1)
	}
}
