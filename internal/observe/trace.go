package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the voxmerge tracer.
const tracerName = "github.com/MrWong99/voxmerge"

type streamKey struct{}

// Tracer returns the package-level [trace.Tracer] backed by the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the span context in ctx, or ""
// when there is no valid trace.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithStream returns a copy of ctx that carries the id of the audio stream
// being served. [Logger] adds it to every record.
func WithStream(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, streamKey{}, streamID)
}

// StreamID returns the stream id stored by [WithStream], if any.
func StreamID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(streamKey{}).(string)
	return id, ok
}

// Logger returns the default [slog.Logger] enriched with trace_id and span_id
// from the active span and the stream id set by [WithStream].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := StreamID(ctx); ok {
		l = l.With(slog.String("stream", id))
	}
	return l
}
