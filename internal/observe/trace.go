package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/lorelens"

// Span attributes shared by the pipeline stages.
const (
	AttrLineType    = attribute.Key("lorelens.line.type")
	AttrSpeaker     = attribute.Key("lorelens.speaker.name")
	AttrSpeakerKind = attribute.Key("lorelens.speaker.kind")
	AttrCacheHit    = attribute.Key("lorelens.cache.hit")
	AttrBackend     = attribute.Key("lorelens.backend")
	AttrAttempt     = attribute.Key("lorelens.attempt")
)

// Tracer returns the lorelens tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts an internal span carrying attrs. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Fail records err on span and marks the span as failed. A nil err is a
// no-op so it can be called unconditionally before returning.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// HTTP responses and log lines carry it so one OCR sample can be followed
// through classification, resolution and translation.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
