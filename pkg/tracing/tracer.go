package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by this package in multi-service traces
const TracerName = "opsagent"

// Version is reported as the tracer's instrumentation version
const Version = "0.4.0"

// GetTracer returns a tracer from whatever provider is registered globally.
// Before Initialize, or when tracing is disabled or unavailable, that is the
// OpenTelemetry no-op provider.
func GetTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName, trace.WithInstrumentationVersion(Version))
}
