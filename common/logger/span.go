package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "overflow.app/questions"

// SpanContext wraps an OTel span for managed lifecycle.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan creates a new span as a child of the current trace context.
//
//	sc := logger.StartSpan(ctx, "reconcile.cycle")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// StartSpanFromTraceID starts a consumer-side span that continues the trace stamped on a
// stream message by the publisher. An empty or malformed trace id starts a fresh trace.
func StartSpanFromTraceID(ctx context.Context, traceIDStr string, name string, opts ...trace.SpanStartOption) *SpanContext {
	tracer := otel.Tracer(tracerName)

	traceID, err := trace.TraceIDFromHex(traceIDStr)
	if traceIDStr == "" || err != nil {
		ctx, span := tracer.Start(ctx, name, opts...)
		return &SpanContext{ctx: ctx, span: span}
	}

	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
	ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	ctx, span := tracer.Start(ctx, name, opts...)

	return &SpanContext{ctx: ctx, span: span}
}

// TraceIDFromContext returns the active trace id as hex, or "" when no span is recording.
// The publisher stamps it on outbox records so the projector can continue the trace.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End completes the span. Safe to call multiple times.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError records err on the span and marks it failed.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	}
}

// SetEvent tags the span with the envelope coordinates being handled.
func (sc *SpanContext) SetEvent(eventType, aggregateID string, sequence int64) {
	if sc.span == nil {
		return
	}
	sc.span.SetAttributes(
		attribute.String("event.type", eventType),
		attribute.String("question.id", aggregateID),
		attribute.Int64("event.sequence", sequence),
	)
}

func (sc *SpanContext) Span() trace.Span {
	return sc.span
}
