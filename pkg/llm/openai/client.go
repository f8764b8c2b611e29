package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/retry"
)

// parallelToolName is the pseudo tool some models emit to batch calls
const parallelToolName = "multi_tool_use.parallel"

// OpenAIClient implements the LLM interface for OpenAI
type OpenAIClient struct {
	Client        *openai.Client
	Model         string
	temperature   float64
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// Option represents an option for configuring the OpenAI client
type Option func(*OpenAIClient)

// WithModel sets the model for the OpenAI client
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the OpenAI client
func WithLogger(logger logging.Logger) Option {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithTemperature sets the default sampling temperature
func WithTemperature(temperature float64) Option {
	return func(c *OpenAIClient) {
		c.temperature = temperature
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *OpenAIClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint
func WithBaseURL(apiKey, baseURL string) Option {
	return func(c *OpenAIClient) {
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = baseURL
		c.Client = openai.NewClientWithConfig(config)
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, options ...Option) *OpenAIClient {
	client := &OpenAIClient{
		Client:      openai.NewClient(apiKey),
		Model:       "gpt-4o-mini",
		temperature: 0.2,
		logger:      logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Name implements interfaces.LLM.Name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Chat implements interfaces.LLM.Chat
func (c *OpenAIClient) Chat(ctx context.Context, messages []interfaces.Message, tools []interfaces.Tool, options ...interfaces.GenerateOption) (*interfaces.ChatResponse, error) {
	params := &interfaces.GenerateOptions{Temperature: c.temperature}
	for _, opt := range options {
		if opt != nil {
			opt(params)
		}
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if params.SystemMessage != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: params.SystemMessage,
		})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, toOpenAIMessage(msg))
	}

	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    chatMessages,
		Tools:       toOpenAITools(tools),
		Temperature: float32(params.Temperature),
	}
	if len(req.Tools) > 0 {
		req.ParallelToolCalls = true
	}

	var resp openai.ChatCompletionResponse
	operation := func() error {
		c.logger.Debug(ctx, "Executing OpenAI Chat API request", map[string]interface{}{
			"model":       c.Model,
			"temperature": req.Temperature,
			"messages":    len(req.Messages),
			"tools":       len(req.Tools),
		})

		var err error
		resp, err = c.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			c.logger.Error(ctx, "Error from OpenAI Chat API", map[string]interface{}{
				"error": err.Error(),
				"model": c.Model,
			})
			err = fmt.Errorf("failed to create chat completion: %w", err)
			if !retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	}

	var err error
	if c.retryExecutor != nil {
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completions returned")
	}

	message := resp.Choices[0].Message
	toolCalls, err := c.toolCalls(ctx, message.ToolCalls)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "Successfully received chat response from OpenAI", map[string]interface{}{
		"model":      resp.Model,
		"tool_calls": len(toolCalls),
	})

	return &interfaces.ChatResponse{
		Content:   message.Content,
		ToolCalls: toolCalls,
		Model:     resp.Model,
	}, nil
}

// toolCalls flattens parallel pseudo calls into ordinary ones
func (c *OpenAIClient) toolCalls(ctx context.Context, calls []openai.ToolCall) ([]interfaces.ToolCall, error) {
	out := make([]interfaces.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.Function.Name != parallelToolName {
			out = append(out, interfaces.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
			continue
		}

		var wrapper struct {
			ToolUses []struct {
				RecipientName string                 `json:"recipient_name"`
				Parameters    map[string]interface{} `json:"parameters"`
			} `json:"tool_uses"`
		}
		if err := sonic.UnmarshalString(call.Function.Arguments, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode parallel tool call: %w", err)
		}

		c.logger.Info(ctx, "Expanding parallel tool call", map[string]interface{}{"count": len(wrapper.ToolUses)})
		for i, use := range wrapper.ToolUses {
			args, err := sonic.MarshalString(use.Parameters)
			if err != nil {
				return nil, fmt.Errorf("failed to encode parallel tool parameters: %w", err)
			}
			out = append(out, interfaces.ToolCall{
				ID:        fmt.Sprintf("%s_%d", call.ID, i),
				Name:      stripNamespace(use.RecipientName),
				Arguments: args,
			})
		}
	}
	return out, nil
}

// stripNamespace turns "functions.run_command" into "run_command"
func stripNamespace(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func toOpenAIMessage(msg interfaces.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}

func toOpenAITools(tools []interfaces.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  interfaces.JSONSchema(tool.Parameters()),
			},
		}
	}
	return out
}

// retryable reports whether a failed request may succeed if sent again
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
