package tracing

import (
	"context"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// tracedLLM gives every Chat an LLM-call span once the instrumentation layer
// is running
type tracedLLM struct {
	interfaces.LLM
}

// TraceLLM wraps llm. Tracing state is read per call, so wrapping before
// Initialize is fine.
func TraceLLM(llm interfaces.LLM) interfaces.LLM {
	if t, ok := llm.(*tracedLLM); ok {
		return t
	}
	return &tracedLLM{LLM: llm}
}

func (t *tracedLLM) Chat(ctx context.Context, messages []interfaces.Message, tools []interfaces.Tool, options ...interfaces.GenerateOption) (*interfaces.ChatResponse, error) {
	if in := load().instrumentor; in != nil {
		return in.WrapLLM(t.LLM).Chat(ctx, messages, tools, options...)
	}
	return t.LLM.Chat(ctx, messages, tools, options...)
}
