package masterconn

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "datanode/masterconn"

var (
	heartbeatLatency metric.Float64Histogram
	metricsOnce      sync.Once
)

func initMetrics() {
	meter := otel.Meter(meterName)
	heartbeatLatency, _ = meter.Float64Histogram(
		"datanode.masterconn.heartbeat_latency_seconds",
		metric.WithDescription("Round-trip latency of a cell heartbeat RPC"),
		metric.WithUnit("s"),
	)
}

// recordHeartbeatLatency records one heartbeat round trip's duration,
// tagged by cell tag and whether the call errored.
func recordHeartbeatLatency(tag uint16, d time.Duration, ok bool) {
	metricsOnce.Do(initMetrics)
	if heartbeatLatency == nil {
		return
	}
	heartbeatLatency.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(
			attribute.Int("cell", int(tag)),
			attribute.Bool("ok", ok),
		),
	)
}
