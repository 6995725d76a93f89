// Package telemetry installs the process-wide OTel providers every other
// package's otel.Meter/otel.Tracer package-level accessor resolves
// against (SPEC_FULL.md §11's ambient metrics + tracing stack: pending-I/O
// gauges, block-cache hit/miss counters, job resource gauges, heartbeat
// latency, and RPC/invoker tracing spans). Without this, those accessors
// still work — they just resolve to the API's no-op provider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup builds an in-process MeterProvider and TracerProvider and
// installs them globally. It returns a shutdown func that must be
// called on process exit to release SDK resources.
func Setup() (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			mp.Shutdown(ctx) //nolint:errcheck // best-effort on an already-failing shutdown path
			return err
		}
		return mp.Shutdown(ctx)
	}
}
