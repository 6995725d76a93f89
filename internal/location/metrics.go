package location

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "datanode/location"

var (
	pendingIOBytes metric.Int64UpDownCounter
	metricsOnce    sync.Once
)

func initMetrics() {
	meter := otel.Meter(meterName)
	pendingIOBytes, _ = meter.Int64UpDownCounter(
		"datanode.location.pending_io_bytes",
		metric.WithDescription("Bytes of in-flight I/O accounted against a location, by direction and category"),
	)
}

// recordPendingIODelta applies delta (positive on accounting, negative on
// release) to the pending-I/O gauge, tagged with the location, direction
// and category it was accounted under (spec §4.1 pending-I/O accounting).
func recordPendingIODelta(locationID string, direction IODirection, category IOCategory, delta int64) {
	metricsOnce.Do(initMetrics)
	if pendingIOBytes == nil || delta == 0 {
		return
	}
	pendingIOBytes.Add(context.Background(), delta,
		metric.WithAttributes(
			attribute.String("location", locationID),
			attribute.Int("direction", int(direction)),
			attribute.Int("category", int(category)),
		),
	)
}
