// Package observability wires the runtime's Telemetry/Span seams to real
// OpenTelemetry instrumentation. Grounded on the teacher's
// telemetry/otel.go (itsneelabh/gomind), which implements the same
// core.Telemetry/core.Span interfaces over go.opentelemetry.io/otel; this
// package narrows that to the pieces SPEC_FULL.md's domain stack calls for
// (otel, otel/trace, otel/metric, otelhttp) without the teacher's own OTLP
// exporter wiring, which is configuration the runtime's operator supplies
// externally via whatever global TracerProvider/MeterProvider they install.
package observability

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry starts spans and records metrics. A no-op implementation is
// always safe to use; a real one is backed by whatever TracerProvider and
// MeterProvider are registered globally via otel.SetTracerProvider /
// otel.SetMeterProvider.
type Telemetry interface {
	StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span is a single traced operation.
type Span interface {
	End()
	SetAttribute(key string, value any)
	RecordError(err error)
}

// Attr is a span-start attribute (string-valued, the common case for agent
// and request identifiers).
type Attr struct {
	Key   string
	Value string
}

// instrumentationName names the module for span/metric attribution.
const instrumentationName = "github.com/corebound/agentrt"

// otelTelemetry is the real implementation, backed by the globally
// registered otel providers.
type otelTelemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// New constructs a Telemetry backed by the current global OpenTelemetry
// providers (otel.Tracer / otel.Meter). Callers that want real export must
// install a TracerProvider/MeterProvider before startup; otherwise otel's
// own no-op providers are used transparently, matching the teacher's
// "telemetry is optional and safe by default" posture.
func New() Telemetry {
	return &otelTelemetry{
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		counters: make(map[string]metric.Float64Counter),
	}
}

func (t *otelTelemetry) StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kv = append(kv, attribute.String(a.Key, a.Value))
	}
	next, span := t.tracer.Start(ctx, name, trace.WithAttributes(kv...))
	return next, &otelSpan{span: span}
}

func (t *otelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	counter, ok := t.counters[name]
	if !ok {
		var err error
		counter, err = t.meter.Float64Counter(name)
		if err != nil {
			t.mu.Unlock()
			return
		}
		t.counters[name] = counter
	}
	t.mu.Unlock()

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

type otelSpan struct{ span trace.Span }

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v any) string {
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return "unknown"
}

// NoOp is a Telemetry that does nothing, for tests and deployments that
// opt out of tracing entirely.
type NoOp struct{}

func (NoOp) StartSpan(ctx context.Context, _ string, _ ...Attr) (context.Context, Span) {
	return ctx, noOpSpan{}
}
func (NoOp) RecordMetric(string, float64, map[string]string) {}

type noOpSpan struct{}

func (noOpSpan) End()                     {}
func (noOpSpan) SetAttribute(string, any) {}
func (noOpSpan) RecordError(error)        {}

// WrapHandler instruments h with otelhttp, producing one span per inbound
// request, using operation as the span's operation name.
func WrapHandler(operation string, h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
