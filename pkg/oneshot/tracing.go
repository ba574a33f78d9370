package oneshot

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry
// tracing observer.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "oneshot")
	TracerName string
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "oneshot",
	}
}

// Tracing returns an observer that opens an OpenTelemetry span per
// connection, from accept to close.
func Tracing() ConnObserver {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a tracing observer with custom configuration.
func TracingWithConfig(config TracingConfig) ConnObserver {
	if config.TracerName == "" {
		config.TracerName = "oneshot"
	}

	return &tracingObserver{
		tracer: otel.Tracer(config.TracerName),
	}
}

type tracingObserver struct {
	tracer trace.Tracer
	spans  sync.Map // connection id -> trace.Span
}

func (t *tracingObserver) ConnAccepted(id int64, remote string) {
	_, span := t.tracer.Start(
		context.Background(),
		"oneshot.connection",
		trace.WithSpanKind(trace.SpanKindServer),
	)

	span.SetAttributes(
		attribute.Int64("oneshot.conn_id", id),
		attribute.String("net.peer.addr", remote),
	)

	t.spans.Store(id, span)
}

func (t *tracingObserver) ConnHeadersComplete(id int64) {
	if span, ok := t.span(id); ok {
		span.AddEvent("headers complete")
	}
}

func (t *tracingObserver) ConnResponded(id int64, err error) {
	span, ok := t.span(id)
	if !ok {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.AddEvent("response written")
	span.SetStatus(codes.Ok, "")
}

func (t *tracingObserver) ConnProtocolError(id int64, err error) {
	if span, ok := t.span(id); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (t *tracingObserver) ConnClosed(id int64, _ error) {
	if span, ok := t.spans.LoadAndDelete(id); ok {
		span.(trace.Span).End()
	}
}

func (t *tracingObserver) span(id int64) (trace.Span, bool) {
	span, ok := t.spans.Load(id)
	if !ok {
		return nil, false
	}
	return span.(trace.Span), true
}
