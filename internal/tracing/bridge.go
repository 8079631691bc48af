package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const bridgeTracerName = "oauthbridge-bridge"

func bridgeTracer() trace.Tracer {
	return Tracer(bridgeTracerName)
}

// TraceHandshake starts a span for the upgrade handshake with the parent.
func TraceHandshake(ctx context.Context, codec string, port int) (context.Context, trace.Span) {
	ctx, span := bridgeTracer().Start(ctx, "bridge.handshake",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("codec", codec),
		attribute.Int("parent_port", port),
	)
	return ctx, span
}

// TraceEventSend starts a span for one outbound broadcast.
func TraceEventSend(ctx context.Context, event string) (context.Context, trace.Span) {
	ctx, span := bridgeTracer().Start(ctx, "bridge.event.send",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	span.SetAttributes(attribute.String("event", event))
	return ctx, span
}

// TraceCapture starts a span covering a whole callback listener run.
func TraceCapture(ctx context.Context, runID string) (context.Context, trace.Span) {
	ctx, span := bridgeTracer().Start(ctx, "callback.capture",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(attribute.String("run_id", runID))
	return ctx, span
}

// EndWithError records err (if any) and ends the span.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
