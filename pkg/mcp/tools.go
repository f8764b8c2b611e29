package mcp

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// MCPTool exposes a tool of a remote MCP server as an interfaces.Tool
type MCPTool struct {
	name        string
	description string
	schema      interface{}
	server      interfaces.MCPServer
}

// NewMCPTool creates a tool that forwards calls to server
func NewMCPTool(name, description string, schema interface{}, server interfaces.MCPServer) *MCPTool {
	return &MCPTool{
		name:        name,
		description: description,
		schema:      schema,
		server:      server,
	}
}

// Name implements interfaces.Tool
func (t *MCPTool) Name() string {
	return t.name
}

// Description implements interfaces.Tool
func (t *MCPTool) Description() string {
	return t.description
}

// Parameters implements interfaces.Tool. Only the top-level properties of
// the server's input schema are carried over.
func (t *MCPTool) Parameters() map[string]interfaces.ParameterSpec {
	params := make(map[string]interfaces.ParameterSpec)

	schema, ok := t.schema.(map[string]interface{})
	if !ok {
		return params
	}
	required := make(map[string]bool)
	if list, ok := schema["required"].([]interface{}); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	properties, _ := schema["properties"].(map[string]interface{})
	for name, p := range properties {
		prop, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		spec := interfaces.ParameterSpec{Required: required[name]}
		spec.Type, _ = prop["type"].(string)
		spec.Description, _ = prop["description"].(string)
		if enum, ok := prop["enum"].([]interface{}); ok {
			spec.Enum = enum
		}
		params[name] = spec
	}
	return params
}

// Execute implements interfaces.Tool. A response flagged as an error is
// returned as a failed result.
func (t *MCPTool) Execute(ctx context.Context, args string) (interfaces.ToolResult, error) {
	var arguments map[string]interface{}
	if args != "" {
		if err := sonic.UnmarshalString(args, &arguments); err != nil {
			return interfaces.ToolResult{}, fmt.Errorf("invalid %s arguments: %w", t.name, err)
		}
	}

	resp, err := t.server.CallTool(ctx, t.name, arguments)
	if err != nil {
		return interfaces.ToolResult{}, fmt.Errorf("MCP call %s failed: %w", t.name, err)
	}

	if resp.IsError {
		return interfaces.ToolResult{Output: resp.Content, Failed: true}, nil
	}
	return interfaces.ToolResult{Output: resp.Content}, nil
}
