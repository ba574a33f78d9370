package oneshot

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracing_Observer(t *testing.T) {
	// Set up a test tracer
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	tracing := Tracing()

	tracing.ConnAccepted(0, "127.0.0.1:50000")
	tracing.ConnHeadersComplete(0)
	tracing.ConnResponded(0, nil)
	tracing.ConnClosed(0, nil)

	// Verify span lifecycle completed (implicitly tested by no panic)
}

func TestTracing_SpanCleanup(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	observer := Tracing().(*tracingObserver)

	observer.ConnAccepted(5, "127.0.0.1:50000")

	if _, ok := observer.spans.Load(int64(5)); !ok {
		t.Error("Expected span to be stored on accept")
	}

	observer.ConnClosed(5, nil)

	if _, ok := observer.spans.Load(int64(5)); ok {
		t.Error("Expected span to be removed on close")
	}
}

func TestTracing_ErrorRecording(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	tracing := Tracing()

	tracing.ConnAccepted(1, "127.0.0.1:50001")
	tracing.ConnProtocolError(1, errors.New("bad request"))
	tracing.ConnClosed(1, nil)

	tracing.ConnAccepted(2, "127.0.0.1:50002")
	tracing.ConnHeadersComplete(2)
	tracing.ConnResponded(2, errors.New("write: broken pipe"))
	tracing.ConnClosed(2, nil)

	// Errors should be recorded in the spans
}

func TestTracingConfig_Defaults(t *testing.T) {
	config := DefaultTracingConfig()

	if config.TracerName != "oneshot" {
		t.Errorf("Expected tracer name 'oneshot', got %s", config.TracerName)
	}
}

func TestTracingWithConfig_EmptyName(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	tracing := TracingWithConfig(TracingConfig{})

	tracing.ConnAccepted(9, "127.0.0.1:50009")
	tracing.ConnClosed(9, nil)

	// Empty tracer name falls back to the default
}

func TestTracing_UnknownConnection(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	tracing := Tracing()

	// Events for a connection that was never accepted must be ignored.
	tracing.ConnHeadersComplete(42)
	tracing.ConnResponded(42, nil)
	tracing.ConnProtocolError(42, errors.New("bad request"))
	tracing.ConnClosed(42, nil)
}
