package tablereader

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "datanode/tablereader"

var (
	hashFalsePositives metric.Int64Counter
	metricsOnce        sync.Once
)

func initMetrics() {
	meter := otel.Meter(meterName)
	hashFalsePositives, _ = meter.Int64Counter(
		"datanode.tablereader.hash_false_positives",
		metric.WithDescription("Lookup hash table collisions that failed the byte-for-byte key comparison"),
	)
}

// recordHashFalsePositive is called from HashTable.RecordFalsePositive.
// No context threads through the lookup path (spec §4.4.1's Lookup takes
// none), so this records against context.Background, matching how the
// teacher's own fire-and-forget counters are recorded where no request
// context is available.
func recordHashFalsePositive() {
	metricsOnce.Do(initMetrics)
	if hashFalsePositives != nil {
		hashFalsePositives.Add(context.Background(), 1)
	}
}
