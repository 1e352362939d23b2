package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hazyhaar/feedkeeper"

// Tracer returns the package tracer from the global provider. Without an
// installed SDK every span is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartRunSpan starts the span covering one sync or enrichment run.
func StartRunSpan(ctx context.Context, kind, runID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "feedkeeper."+kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.kind", kind),
		),
	)
}

// StartItemSpan starts a child span for one source or record.
func StartItemSpan(ctx context.Context, op, locator string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "feedkeeper."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("item.locator", locator)}, attrs...)...),
	)
}

// RecordError marks the span failed with the error's failure kind.
func RecordError(span trace.Span, err error, kind string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("failure.kind", kind))
}

// AddStatusTransition records an enrichment state change on the span.
func AddStatusTransition(span trace.Span, from, to string, retryCount int) {
	span.AddEvent("status.transition",
		trace.WithAttributes(
			attribute.String("status.from", from),
			attribute.String("status.to", to),
			attribute.Int("retry.count", retryCount),
		),
	)
}

// AddVerdict records the change detector verdict for an ingested item.
func AddVerdict(span trace.Span, verdict, keyKind string) {
	span.AddEvent("ingest.verdict",
		trace.WithAttributes(
			attribute.String("verdict", verdict),
			attribute.String("identity.kind", keyKind),
		),
	)
}
