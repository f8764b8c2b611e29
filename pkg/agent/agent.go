package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/run-bigpig/opsagent/pkg/config"
	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/mcp"
	"github.com/run-bigpig/opsagent/pkg/orchestration"
	"github.com/run-bigpig/opsagent/pkg/tools"
	"github.com/run-bigpig/opsagent/pkg/tracing"
)

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit
var ErrMaxIterations = errors.New("agent reached the maximum number of iterations")

const defaultMaxIterations = 8

// Agent investigates a question by letting the model call tools until it
// answers
type Agent struct {
	llm           interfaces.LLM
	registry      *tools.Registry
	dispatcher    *orchestration.Dispatcher
	dispatchOpts  []orchestration.Option
	mcpServers    []interfaces.MCPServer
	systemPrompt  string
	agentConfig   *config.AgentConfig
	name          string
	maxIterations int
	logger        logging.Logger
}

// Option represents an option for configuring an agent
type Option func(*Agent)

// WithLLM sets the LLM for the agent
func WithLLM(llm interfaces.LLM) Option {
	return func(a *Agent) {
		a.llm = llm
	}
}

// WithTools adds tools the model may call
func WithTools(tools ...interfaces.Tool) Option {
	return func(a *Agent) {
		for _, t := range tools {
			a.registry.Register(tracing.TraceTool(t))
		}
	}
}

// WithMCPServers adds MCP servers whose tools are offered to the model
func WithMCPServers(servers ...interfaces.MCPServer) Option {
	return func(a *Agent) {
		a.mcpServers = append(a.mcpServers, servers...)
	}
}

// WithDispatcherOptions configures the tool call dispatcher
func WithDispatcherOptions(options ...orchestration.Option) Option {
	return func(a *Agent) {
		a.dispatchOpts = append(a.dispatchOpts, options...)
	}
}

// WithSystemPrompt sets a fixed system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithAgentConfig renders the system prompt from a persona per question.
// It takes precedence over WithSystemPrompt.
func WithAgentConfig(cfg config.AgentConfig) Option {
	return func(a *Agent) {
		a.agentConfig = &cfg
		if cfg.Name != "" {
			a.name = cfg.Name
		}
	}
}

// WithName sets the name of the agent
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithMaxIterations bounds the number of model turns per question
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// WithLogger sets the logger for the agent
func WithLogger(logger logging.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent creates a new agent with the given options
func NewAgent(options ...Option) (*Agent, error) {
	agent := &Agent{
		registry:      tools.NewRegistry(),
		name:          "agent",
		maxIterations: defaultMaxIterations,
		logger:        logging.Nop(),
	}

	for _, option := range options {
		option(agent)
	}

	if agent.llm == nil {
		return nil, fmt.Errorf("LLM is required")
	}
	if agent.maxIterations <= 0 {
		agent.maxIterations = defaultMaxIterations
	}

	agent.llm = tracing.TraceLLM(agent.llm)
	opts := append([]orchestration.Option{orchestration.WithLogger(agent.logger)}, agent.dispatchOpts...)
	agent.dispatcher = orchestration.NewDispatcher(agent.registry, opts...)

	return agent, nil
}

// Name returns the name of the agent
func (a *Agent) Name() string {
	return a.name
}

// Tools returns the tools offered to the model, MCP tools included once a
// run has collected them
func (a *Agent) Tools() []interfaces.Tool {
	return a.registry.List()
}

// Investigate answers question under an investigation root span and writes
// the answer to out
func (a *Agent) Investigate(ctx context.Context, question string, out io.Writer) error {
	return tracing.TraceInvestigation(ctx, a.name, question, func(ctx context.Context) error {
		answer, err := a.Run(ctx, question)
		if err != nil {
			return err
		}
		tracing.SetRootOutput(ctx, answer)

		if _, err := fmt.Fprintln(out, answer); err != nil {
			return fmt.Errorf("failed to write answer: %w", err)
		}
		return nil
	})
}

// Run runs the tool loop for question and returns the model's answer
func (a *Agent) Run(ctx context.Context, question string) (string, error) {
	if len(a.mcpServers) > 0 {
		a.collectMCPTools(ctx)
	}

	options := []interfaces.GenerateOption{}
	if prompt := a.prompt(question); prompt != "" {
		options = append(options, interfaces.WithSystemMessage(prompt))
	}

	history := []interfaces.Message{{Role: "user", Content: question}}
	available := a.registry.List()

	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.llm.Chat(ctx, history, available, options...)
		if err != nil {
			return "", fmt.Errorf("failed to generate response: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			a.logger.Info(ctx, "Investigation answered", map[string]interface{}{
				"agent":      a.name,
				"iterations": i + 1,
			})
			return resp.Content, nil
		}

		a.logger.Debug(ctx, "Model requested tool calls", map[string]interface{}{
			"agent":     a.name,
			"iteration": i + 1,
			"calls":     len(resp.ToolCalls),
		})

		history = append(history, interfaces.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, result := range a.dispatcher.Dispatch(ctx, resp.ToolCalls) {
			history = append(history, interfaces.Message{
				Role:       "tool",
				Content:    result.Content(),
				ToolCallID: result.Call.ID,
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, a.maxIterations)
}

func (a *Agent) prompt(question string) string {
	if a.agentConfig != nil {
		return a.agentConfig.SystemPrompt(map[string]string{"question": question})
	}
	return a.systemPrompt
}

// collectMCPTools registers the tools of every MCP server. A server that
// cannot list its tools is skipped.
func (a *Agent) collectMCPTools(ctx context.Context) {
	for _, server := range a.mcpServers {
		listed, err := server.ListTools(ctx)
		if err != nil {
			a.logger.Warn(ctx, "Failed to list tools from MCP server", map[string]interface{}{"error": err.Error()})
			continue
		}

		for _, t := range listed {
			a.registry.Register(tracing.TraceTool(mcp.NewMCPTool(t.Name, t.Description, t.Schema, server)))
		}
	}
}
