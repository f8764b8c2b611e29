package interfaces

import "context"

// LLM represents a large language model provider
type LLM interface {
	// Chat sends the conversation and the tools the model may call, and
	// returns either a final answer or the tool calls the model wants made
	Chat(ctx context.Context, messages []Message, tools []Tool, options ...GenerateOption) (*ChatResponse, error)

	// Name returns the name of the LLM provider
	Name() string
}

// Message represents a message in a conversation
type Message struct {
	// Role is the role of the message sender ("system", "user", "assistant", "tool")
	Role string

	// Content is the content of the message
	Content string

	// ToolCalls are the calls an assistant message asked for
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers
	ToolCallID string
}

// ChatResponse is one model turn
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
}

// GenerateOption represents options for text generation
type GenerateOption func(options *GenerateOptions)

// GenerateOptions contains configuration for text generation
type GenerateOptions struct {
	SystemMessage string  // System message for chat models
	Temperature   float64 // Temperature for the generation
}

// WithSystemMessage sets the system message
func WithSystemMessage(message string) GenerateOption {
	return func(options *GenerateOptions) {
		options.SystemMessage = message
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temperature float64) GenerateOption {
	return func(options *GenerateOptions) {
		options.Temperature = temperature
	}
}
