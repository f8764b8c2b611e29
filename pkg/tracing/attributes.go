package tracing

// Vendor-neutral span attribute keys, following the OpenTelemetry GenAI and
// MCP semantic conventions
const (
	AttrOperationName = "gen_ai.operation.name"
	AttrAgentName     = "gen_ai.agent.name"

	AttrToolName        = "gen_ai.tool.name"
	AttrToolType        = "gen_ai.tool.type"
	AttrToolCallID      = "gen_ai.tool.call.id"
	AttrToolDescription = "gen_ai.tool.description"
	AttrToolArguments   = "gen_ai.tool.call.arguments"
	AttrToolResult      = "gen_ai.tool.call.result"
	AttrToolDefinitions = "gen_ai.tool.definitions"

	AttrInput  = "gen_ai.input"
	AttrOutput = "gen_ai.output"

	AttrMCPMethodName = "mcp.method.name"
)

// Attribute values
const (
	OperationInvokeAgent = "invoke_agent"
	OperationExecuteTool = "execute_tool"

	ToolTypeFunction = "function"

	MCPMethodToolsCall = "tools/call"
)
