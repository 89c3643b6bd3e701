package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "basegraph.app/pagebot"

// Span is a started OTel span. The zero value is a no-op.
type Span struct {
	span trace.Span
}

// StartSpan opens a child of the span in ctx and returns the context that
// carries the new span.
//
//	ctx, span := logger.StartSpan(ctx, "scheduler.run_task", attribute.String("task.type", "respond"))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// ContinueTrace starts a consumer span under a trace id that travelled
// through the intake stream. A missing or malformed id starts a new trace.
func ContinueTrace(ctx context.Context, traceID, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	}

	if tid, err := trace.TraceIDFromHex(traceID); err == nil {
		remote := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    tid,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return ctx, &Span{span: span}
}

func (s *Span) Annotate(attrs ...attribute.KeyValue) {
	if s.span != nil {
		s.span.SetAttributes(attrs...)
	}
}

// Fail records err and marks the span as errored. A nil err is ignored.
func (s *Span) Fail(err error) {
	if s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End may be called more than once.
func (s *Span) End() {
	if s.span != nil {
		s.span.End()
	}
}
