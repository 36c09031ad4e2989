// Package tracing wraps OpenTelemetry span creation behind the small
// interface the rest of the orchestrator calls through, and carries trace
// context across the worker/LLM RPC boundary so a span started when a task
// is submitted still parents the span the inference backend or a worker
// records when it actually runs the request.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts a span named name with the given attributes and returns the
// derived context plus a function that ends the span, recording err (if
// non-nil) on it first.
type Tracer interface {
	Start(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
}

// OTELTracer is the production Tracer backed by the global otel TracerProvider.
type OTELTracer struct {
	tracer trace.Tracer
}

// NewOTELTracer builds a Tracer under the given instrumentation name.
func NewOTELTracer(instrumentationName string) *OTELTracer {
	return &OTELTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *OTELTracer) Start(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, fmt.Sprint(v)))
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(kvs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// NullTracer is a no-op Tracer for tests and for callers that don't want
// tracing overhead.
type NullTracer struct{}

func (NullTracer) Start(ctx context.Context, _ string, _ map[string]any) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

// Carrier is the wire representation of a propagated trace context: a flat
// string map suitable for use as request headers or for embedding in a JSON
// request body.
type Carrier map[string]string

// Inject captures the trace context active on ctx into a fresh Carrier for
// transmission to a worker or the inference backend.
func Inject(ctx context.Context) Carrier {
	c := Carrier{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(c))
	return c
}

// Extract restores a trace context previously captured by Inject onto ctx,
// so a span started from the returned context parents back to the
// submitting span even though it runs in a different goroutine or process.
func Extract(ctx context.Context, c Carrier) context.Context {
	if c == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(c))
}
