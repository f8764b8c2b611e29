package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/run-bigpig/opsagent/pkg/optional"
)

// langfuseClient is the part of the Langfuse SDK the exporter uses
type langfuseClient interface {
	Trace(t *model.Trace) (*model.Trace, error)
	Span(s *model.Span, parentID *string) (*model.Span, error)
	Generation(g *model.Generation, parentID *string) (*model.Generation, error)
	Flush(ctx context.Context)
}

// LangfuseExporter maps finished spans to Langfuse observations. Root spans
// open a Langfuse trace, LLM-call spans become generations, everything else
// becomes a span. Ids are the OpenTelemetry hex ids so parent links survive.
type LangfuseExporter struct {
	client langfuseClient

	mu      sync.Mutex
	stopped bool
}

func init() {
	optional.Register(ExporterID(ExporterLangfuse), func() (optional.Module, error) {
		return ExporterFactory(newLangfuseExporter), nil
	})
}

// newLangfuseExporter reads credentials the way the Langfuse SDK does, from
// LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY. A configured endpoint
// overrides LANGFUSE_HOST.
func newLangfuseExporter(ctx context.Context, settings ExporterSettings) (sdktrace.SpanExporter, error) {
	if os.Getenv("LANGFUSE_PUBLIC_KEY") == "" || os.Getenv("LANGFUSE_SECRET_KEY") == "" {
		return nil, errors.New("LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY must be set")
	}
	if settings.Endpoint != "" {
		if err := os.Setenv("LANGFUSE_HOST", settings.Endpoint); err != nil {
			return nil, fmt.Errorf("failed to set Langfuse host: %w", err)
		}
	}

	return NewLangfuseExporter(langfuse.New(ctx)), nil
}

// NewLangfuseExporter creates an exporter on top of an existing client
func NewLangfuseExporter(client langfuseClient) *LangfuseExporter {
	return &LangfuseExporter{client: client}
}

// ExportSpans implements sdktrace.SpanExporter. The first failing span
// aborts the batch.
func (e *LangfuseExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.export(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *LangfuseExporter) export(s sdktrace.ReadOnlySpan) error {
	sc := s.SpanContext()
	traceID := sc.TraceID().String()
	spanID := sc.SpanID().String()
	start := s.StartTime()
	end := s.EndTime()
	attrs := attributeMap(s.Attributes())

	var parentID *string
	if parent := s.Parent(); parent.IsValid() {
		id := parent.SpanID().String()
		parentID = &id
	} else {
		_, err := e.client.Trace(&model.Trace{
			ID:        traceID,
			Timestamp: &start,
			Name:      s.Name(),
			Input:     attrs[AttrInput],
			Output:    attrs[AttrOutput],
			Metadata:  attrs,
		})
		if err != nil {
			return fmt.Errorf("failed to create Langfuse trace: %w", err)
		}
	}

	level := model.ObservationLevelDefault
	statusMessage := ""
	if s.Status().Code == codes.Error {
		level = model.ObservationLevelError
		statusMessage = s.Status().Description
	}

	if isLLMCallSpan(s.Name()) {
		_, err := e.client.Generation(&model.Generation{
			ID:            spanID,
			TraceID:       traceID,
			Name:          s.Name(),
			StartTime:     &start,
			EndTime:       &end,
			Model:         stringAttr(attrs, "gen_ai.response.model", "gen_ai.request.model"),
			Input:         attrs["gen_ai.prompt"],
			Output:        attrs["gen_ai.completion"],
			Metadata:      attrs,
			Level:         level,
			StatusMessage: statusMessage,
		}, parentID)
		if err != nil {
			return fmt.Errorf("failed to create Langfuse generation: %w", err)
		}
		return nil
	}

	input := attrs[AttrToolArguments]
	if input == nil {
		input = attrs[AttrInput]
	}
	output := attrs[AttrToolResult]
	if output == nil {
		output = attrs[AttrOutput]
	}

	_, err := e.client.Span(&model.Span{
		ID:            spanID,
		TraceID:       traceID,
		Name:          s.Name(),
		StartTime:     &start,
		EndTime:       &end,
		Input:         input,
		Output:        output,
		Metadata:      attrs,
		Level:         level,
		StatusMessage: statusMessage,
	}, parentID)
	if err != nil {
		return fmt.Errorf("failed to create Langfuse span: %w", err)
	}
	return nil
}

// Shutdown flushes buffered observations and stops further exports
func (e *LangfuseExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true
	e.client.Flush(ctx)
	return nil
}

func attributeMap(kvs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func stringAttr(attrs map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := attrs[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
