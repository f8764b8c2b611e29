package instrumentation

import (
	"github.com/bytedance/sonic"
)

// Span attribute keys written by this layer
const (
	AttrSpanKind     = "traceloop.span.kind"
	AttrEntityName   = "traceloop.entity.name"
	AttrEntityInput  = "traceloop.entity.input"
	AttrEntityOutput = "traceloop.entity.output"

	AttrLLMSystem        = "gen_ai.system"
	AttrLLMRequestType   = "llm.request.type"
	AttrLLMRequestModel  = "gen_ai.request.model"
	AttrLLMResponseModel = "gen_ai.response.model"
	AttrLLMPrompts       = "gen_ai.prompt"
	AttrLLMCompletion    = "gen_ai.completion"
	AttrLLMToolCount     = "llm.request.functions.count"
	AttrLLMToolCalls     = "llm.response.tool_calls.count"
)

// Attribute values
const (
	SpanKindTool     = "tool"
	SpanKindWorkflow = "workflow"
	SpanKindTask     = "task"

	RequestTypeChat = "chat"
)

// ToolSpanName is the name the layer gives tool spans
func ToolSpanName(tool string) string {
	return tool + ".tool"
}

// LLMSpanName is the name the layer gives LLM-call spans
func LLMSpanName(provider string) string {
	return provider + "." + RequestTypeChat
}

// Serialize renders a payload for a span attribute. Strings are kept as is.
func Serialize(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}

	out, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "<unserializable: " + err.Error() + ">"
	}
	return out
}
