// Package tracingtest initializes tracing against an in-memory exporter
package tracingtest

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/run-bigpig/opsagent/pkg/instrumentation"
	"github.com/run-bigpig/opsagent/pkg/optional"
	"github.com/run-bigpig/opsagent/pkg/tracing"
)

// Config controls Enable
type Config struct {
	CaptureContent bool

	// Options are passed to tracing.Initialize after the test loader
	Options []tracing.Option
}

// Enable resets tracing and initializes it with the console exporter
// replaced by an in-memory one. Spans are exported as soon as they end.
// The returned exporter is valid until the test finishes.
func Enable(t testing.TB, cfg Config) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tracing.ResetForTesting()
	t.Cleanup(tracing.ResetForTesting)

	opts := append([]tracing.Option{tracing.WithLoader(Loader(exporter))}, cfg.Options...)
	err := tracing.Initialize(context.Background(), tracing.Config{
		Enabled:        true,
		Exporter:       tracing.ExporterConsole,
		CaptureContent: cfg.CaptureContent,
	}, opts...)
	if err != nil {
		t.Fatalf("tracing.Initialize: %v", err)
	}
	return exporter
}

// Loader resolves the console exporter to exp and includes the
// instrumentation layer
func Loader(exp sdktrace.SpanExporter) *optional.Loader {
	l := optional.NewLoader()
	l.Register(tracing.ExporterID(tracing.ExporterConsole), func() (optional.Module, error) {
		return tracing.ExporterFactory(func(context.Context, tracing.ExporterSettings) (sdktrace.SpanExporter, error) {
			return exp, nil
		}), nil
	})
	l.Register(instrumentation.ID, func() (optional.Module, error) {
		return &instrumentation.Package{Version: instrumentation.Version, Init: instrumentation.Init}, nil
	})
	return l
}

// SpanByName returns the first exported span called name
func SpanByName(spans tracetest.SpanStubs, name string) (tracetest.SpanStub, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

// Attr returns the exported value of key on span as a string
func Attr(span tracetest.SpanStub, key string) (string, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}
