package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/run-bigpig/opsagent/pkg/optional"
)

// ExporterSettings is what an exporter factory gets to build its exporter
type ExporterSettings struct {
	// Endpoint is the normalized destination, empty for local exporters
	Endpoint string

	// Insecure allows plaintext connections
	Insecure bool

	// Writer receives console output
	Writer io.Writer
}

// ExporterFactory builds a span exporter. Exporter packages register one
// with the optional loader under ExporterID(kind).
type ExporterFactory func(ctx context.Context, settings ExporterSettings) (sdktrace.SpanExporter, error)

// ExporterID is the optional loader id for an exporter kind
func ExporterID(kind string) string {
	return "exporter/" + kind
}

func init() {
	optional.Register(ExporterID(ExporterConsole), func() (optional.Module, error) {
		return ExporterFactory(newConsoleExporter), nil
	})
	optional.Register(ExporterID(ExporterOTLP), func() (optional.Module, error) {
		return ExporterFactory(newOTLPHTTPExporter), nil
	})
	optional.Register(ExporterID(ExporterOTLPGRPC), func() (optional.Module, error) {
		return ExporterFactory(newOTLPGRPCExporter), nil
	})
}

// newConsoleExporter writes human-readable spans, one JSON document per span
func newConsoleExporter(ctx context.Context, settings ExporterSettings) (sdktrace.SpanExporter, error) {
	w := settings.Writer
	if w == nil {
		w = os.Stderr
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exp, nil
}

// newOTLPHTTPExporter sends spans to the normalized OTLP/HTTP traces URL
func newOTLPHTTPExporter(ctx context.Context, settings ExporterSettings) (sdktrace.SpanExporter, error) {
	exporter, err := otlptrace.New(
		ctx,
		otlptracehttp.NewClient(
			otlptracehttp.WithEndpointURL(settings.Endpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// newOTLPGRPCExporter accepts either a URL or a bare host:port
func newOTLPGRPCExporter(ctx context.Context, settings ExporterSettings) (sdktrace.SpanExporter, error) {
	var opts []otlptracegrpc.Option
	if strings.Contains(settings.Endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(settings.Endpoint))
	} else {
		opts = append(opts, otlptracegrpc.WithEndpoint(settings.Endpoint))
		if settings.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}
