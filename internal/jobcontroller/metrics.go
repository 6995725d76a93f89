package jobcontroller

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "datanode/jobcontroller"

var (
	resourceUsage metric.Int64UpDownCounter
	metricsOnce   sync.Once
)

func initMetrics() {
	meter := otel.Meter(meterName)
	resourceUsage, _ = meter.Int64UpDownCounter(
		"datanode.jobcontroller.resource_usage",
		metric.WithDescription("Claimed job resources, by resource dimension (spec §4.6)"),
	)
}

// recordResourceDelta applies sign*want's four dimensions to the
// resource-usage gauge, one attributed point per dimension, matching
// the Tracker's own typed Resource vector.
func recordResourceDelta(want Resource, sign int64) {
	metricsOnce.Do(initMetrics)
	if resourceUsage == nil {
		return
	}
	ctx := context.Background()
	add := func(dim string, n int64) {
		if n == 0 {
			return
		}
		resourceUsage.Add(ctx, sign*n, metric.WithAttributes(attribute.String("resource", dim)))
	}
	add("memory", want.Memory)
	add("cpu", want.CPU)
	add("replication_data", want.ReplicationDataSize)
	add("repair_data", want.RepairDataSize)
}
