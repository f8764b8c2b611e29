// Package instrumentation is the auto-instrumentation layer: it owns the
// OpenTelemetry tracer provider, creates LLM-call spans around any
// interfaces.LLM, and offers a tool span helper so tool spans share the same
// shape as the rest of its output.
//
// It writes the traceloop attribute vocabulary. Callers that want other
// vocabularies on the same spans add them themselves.
package instrumentation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported as the instrumentation scope version
const Version = "0.4.0"

// ID is the id the layer registers under with the optional loader
const ID = "instrumentation"

const scopeName = "github.com/run-bigpig/opsagent/pkg/instrumentation"

// Options configures Init
type Options struct {
	// ServiceName is the name of the service
	ServiceName string

	// Exporter receives finished spans
	Exporter sdktrace.SpanExporter

	// DisableBatch exports every span as soon as it ends
	DisableBatch bool

	// TraceContent allows prompts, completions and tool payloads on spans
	TraceContent bool

	// SpanProcessors are registered ahead of the exporting processor
	SpanProcessors []sdktrace.SpanProcessor
}

// Instrumentor is the initialized layer
type Instrumentor struct {
	provider     *sdktrace.TracerProvider
	tracer       trace.Tracer
	traceContent bool
}

// Package is what the layer registers with the optional loader
type Package struct {
	Version string
	Init    func(ctx context.Context, opts Options) (*Instrumentor, error)
}

// Init builds the tracer provider and registers it as the global provider
func Init(ctx context.Context, opts Options) (*Instrumentor, error) {
	if opts.Exporter == nil {
		return nil, errors.New("instrumentation: exporter is required")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "unknown_service"
	}

	// Create resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	for _, sp := range opts.SpanProcessors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sp))
	}
	if opts.DisableBatch {
		providerOpts = append(providerOpts, sdktrace.WithSyncer(opts.Exporter))
	} else {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(opts.Exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return newInstrumentor(tp, opts.TraceContent), nil
}

func newInstrumentor(tp *sdktrace.TracerProvider, traceContent bool) *Instrumentor {
	return &Instrumentor{
		provider:     tp,
		tracer:       tp.Tracer(scopeName, trace.WithInstrumentationVersion(Version)),
		traceContent: traceContent,
	}
}

// Tracer returns the layer's own tracer
func (i *Instrumentor) Tracer() trace.Tracer {
	return i.tracer
}

// TraceContent reports whether payloads may be written to spans
func (i *Instrumentor) TraceContent() bool {
	return i.traceContent
}

// ForceFlush exports every finished span still held by the provider
func (i *Instrumentor) ForceFlush(ctx context.Context) error {
	return i.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider
func (i *Instrumentor) Shutdown(ctx context.Context) error {
	return i.provider.Shutdown(ctx)
}
