// Package telemetry provides OpenTelemetry tracing for voice sessions:
// TracerProvider setup, propagation and an event-to-span listener.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/wlyh514/discord-llmvc-bot/runtime/version"
)

const (
	// InstrumentationName is the OTel instrumentation scope name.
	InstrumentationName = "github.com/wlyh514/discord-llmvc-bot"
)

// Propagator names accepted by SetupPropagation.
const (
	PropagatorTraceContext = "tracecontext"
	PropagatorBaggage      = "baggage"
	PropagatorXRay         = "xray"
)

// DefaultPropagators are installed when none are configured.
var DefaultPropagators = []string{PropagatorTraceContext, PropagatorBaggage}

// Tracer returns a named tracer from the given TracerProvider.
// If tp is nil the global provider is used.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version.GetVersion()))
}

// NewTracerProvider creates a TracerProvider that exports spans via OTLP/HTTP.
// The caller is responsible for calling Shutdown on the returned provider.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version.GetVersion()),
		),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// SetupPropagation installs the named propagators as the global text-map
// propagator. An empty list installs DefaultPropagators.
func SetupPropagation(names ...string) error {
	p, err := Propagator(names...)
	if err != nil {
		return err
	}
	otel.SetTextMapPropagator(p)
	return nil
}

// Propagator builds a composite propagator from names.
func Propagator(names ...string) (propagation.TextMapPropagator, error) {
	if len(names) == 0 {
		names = DefaultPropagators
	}
	props := make([]propagation.TextMapPropagator, 0, len(names))
	for _, name := range names {
		switch name {
		case PropagatorTraceContext:
			props = append(props, propagation.TraceContext{})
		case PropagatorBaggage:
			props = append(props, propagation.Baggage{})
		case PropagatorXRay:
			props = append(props, xray.Propagator{})
		default:
			return nil, fmt.Errorf("unknown propagator %q", name)
		}
	}
	return propagation.NewCompositeTextMapPropagator(props...), nil
}
