package tracing

import (
	"context"
	"regexp"
	"sync"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// llmCallSpanName matches the names the instrumentation layer gives to
// model calls, such as "openai.chat"
var llmCallSpanName = regexp.MustCompile(`^[a-z0-9_-]+\.(chat|completion)$`)

func isLLMCallSpan(name string) bool {
	return llmCallSpanName.MatchString(name)
}

// ToolDefinition is one tool as the model sees it
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolDefinitionEnricher attaches the available tool list to every LLM-call
// span when it starts, so a trace shows what the model could choose from.
type ToolDefinitionEnricher struct {
	source func() []ToolDefinition

	once    sync.Once
	encoded string
}

var _ sdktrace.SpanProcessor = (*ToolDefinitionEnricher)(nil)

// NewToolDefinitionEnricher creates the processor. source is called once,
// lazily; a nil source or an empty list sets nothing.
func NewToolDefinitionEnricher(source func() []ToolDefinition) *ToolDefinitionEnricher {
	return &ToolDefinitionEnricher{source: source}
}

// OnStart implements sdktrace.SpanProcessor
func (e *ToolDefinitionEnricher) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if !isLLMCallSpan(s.Name()) {
		return
	}
	if defs := e.definitions(); defs != "" {
		s.SetAttributes(attribute.String(AttrToolDefinitions, defs))
	}
}

func (e *ToolDefinitionEnricher) definitions() string {
	e.once.Do(func() {
		if e.source == nil {
			return
		}
		defs := e.source()
		if len(defs) == 0 {
			return
		}
		encoded, err := sonic.ConfigStd.MarshalToString(defs)
		if err != nil {
			return
		}
		e.encoded = encoded
	})
	return e.encoded
}

// OnEnd implements sdktrace.SpanProcessor
func (e *ToolDefinitionEnricher) OnEnd(s sdktrace.ReadOnlySpan) {}

// Shutdown implements sdktrace.SpanProcessor
func (e *ToolDefinitionEnricher) Shutdown(ctx context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor
func (e *ToolDefinitionEnricher) ForceFlush(ctx context.Context) error { return nil }
