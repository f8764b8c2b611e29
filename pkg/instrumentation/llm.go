package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// LLMMiddleware wraps an LLM with an LLM-call span per request
type LLMMiddleware struct {
	llm interfaces.LLM
	in  *Instrumentor
}

// WrapLLM wraps llm so every Chat call produces a span named
// "<provider>.chat"
func (i *Instrumentor) WrapLLM(llm interfaces.LLM) *LLMMiddleware {
	return &LLMMiddleware{
		llm: llm,
		in:  i,
	}
}

// Chat implements interfaces.LLM.Chat
func (m *LLMMiddleware) Chat(ctx context.Context, messages []interfaces.Message, tools []interfaces.Tool, options ...interfaces.GenerateOption) (*interfaces.ChatResponse, error) {
	ctx, span := m.in.tracer.Start(ctx, LLMSpanName(m.llm.Name()),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrLLMSystem, m.llm.Name()),
			attribute.String(AttrLLMRequestType, RequestTypeChat),
			attribute.Int(AttrLLMToolCount, len(tools)),
		),
	)
	defer span.End()

	if m.in.traceContent {
		span.SetAttributes(attribute.String(AttrLLMPrompts, Serialize(promptsOf(messages))))
	}

	// Call the underlying LLM
	resp, err := m.llm.Chat(ctx, messages, tools, options...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Record response attributes
	span.SetAttributes(
		attribute.String(AttrLLMResponseModel, resp.Model),
		attribute.Int(AttrLLMToolCalls, len(resp.ToolCalls)),
	)
	if m.in.traceContent && resp.Content != "" {
		span.SetAttributes(attribute.String(AttrLLMCompletion, resp.Content))
	}
	span.SetStatus(codes.Ok, "")

	return resp, nil
}

// Name implements interfaces.LLM.Name
func (m *LLMMiddleware) Name() string {
	return m.llm.Name()
}

type prompt struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func promptsOf(messages []interfaces.Message) []prompt {
	out := make([]prompt, 0, len(messages))
	for _, msg := range messages {
		out = append(out, prompt{Role: msg.Role, Content: msg.Content})
	}
	return out
}
