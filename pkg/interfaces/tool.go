package interfaces

import (
	"context"
	"sort"
)

// Tool represents a tool that can be used by an agent
type Tool interface {
	// Name returns the name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the parameters that the tool accepts
	Parameters() map[string]ParameterSpec

	// Execute executes the tool with the given JSON-encoded arguments
	Execute(ctx context.Context, args string) (ToolResult, error)
}

// ParameterSpec defines the specification for a tool parameter
type ParameterSpec struct {
	// Type is the data type of the parameter (string, number, boolean, etc.)
	Type string `json:"type"`

	// Description describes what the parameter is for
	Description string `json:"description,omitempty"`

	// Required indicates if the parameter is required
	Required bool `json:"-"`

	// Default is the default value for the parameter
	Default interface{} `json:"default,omitempty"`

	// Enum is a list of possible values for the parameter
	Enum []interface{} `json:"enum,omitempty"`

	// Items is the type of the items in the parameter
	Items *ParameterSpec `json:"items,omitempty"`
}

// ToolResult is what a tool hands back to the agent.
//
// Failed reports that the tool ran but what it observed is a failure, such as
// a command exiting non-zero or an upstream timing out. It is distinct from
// a returned error, which means the tool itself could not run.
type ToolResult struct {
	Output  string `json:"result"`
	Failed  bool   `json:"failed,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failure implements FailureReporter
func (r ToolResult) Failure() (bool, string) {
	if !r.Failed {
		return false, ""
	}
	if r.Message != "" {
		return true, r.Message
	}
	if r.Output != "" {
		return true, r.Output
	}
	return true, "tool reported failure"
}

// FailureReporter is implemented by results that carry a typed failure flag
type FailureReporter interface {
	Failure() (failed bool, message string)
}

// ToolRegistry is a registry of available tools
type ToolRegistry interface {
	// Register registers a tool with the registry
	Register(tool Tool)

	// Get returns a tool by name
	Get(name string) (Tool, bool)

	// List returns all registered tools
	List() []Tool
}

// ToolCall is a single tool invocation requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// JSONSchema renders parameter specs as a JSON Schema object, the form
// function-calling APIs expect
func JSONSchema(params map[string]ParameterSpec) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := make([]string, 0)

	for name, param := range params {
		properties[name] = propertySchema(param)
		if param.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func propertySchema(param ParameterSpec) map[string]interface{} {
	prop := map[string]interface{}{
		"type": param.Type,
	}
	if param.Description != "" {
		prop["description"] = param.Description
	}
	if param.Default != nil {
		prop["default"] = param.Default
	}
	if len(param.Enum) > 0 {
		prop["enum"] = param.Enum
	}
	if param.Items != nil {
		prop["items"] = propertySchema(*param.Items)
	}
	return prop
}
