package interfaces

import "context"

// MCPServer is a connection to an upstream MCP server whose tools the agent
// may call
type MCPServer interface {
	// ListTools lists the tools the server offers
	ListTools(ctx context.Context) ([]MCPTool, error)

	// CallTool calls name with decoded JSON arguments
	CallTool(ctx context.Context, name string, args interface{}) (*MCPToolResponse, error)

	// Close releases the connection and any process behind it
	Close() error
}

// MCPTool describes one upstream tool. Schema is its JSON Schema input
// definition as decoded from the wire.
type MCPTool struct {
	Name        string
	Description string
	Schema      interface{}
}

// MCPToolResponse is the text an upstream tool returned. IsError marks a
// result the server flagged as a tool failure.
type MCPToolResponse struct {
	Content string
	IsError bool
}
