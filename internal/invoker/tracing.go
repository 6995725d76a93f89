package invoker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the invoker package's OTel tracing scope. A submitted task is
// a suspension point (spec §5: "cancellation propagates through future
// chains"): the span opened here covers queueing, the wait for a free
// worker slot, and execution, so a trace shows how long a task actually
// sat suspended versus how long it ran.
var tracer = otel.Tracer("datanode/invoker")

// startTaskSpan opens a span for one submitted task. The span is ended
// by the dispatch goroutine once fn returns (or the pool discards the
// task before dispatch, in which case the caller ends it immediately).
func startTaskSpan(ctx context.Context, priority int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "invoker.task", trace.WithAttributes(
		attribute.Int("priority", priority),
	))
}

func endTaskSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
