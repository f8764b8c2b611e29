package main

import (
	"context"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/urfave/cli/v2"

	"github.com/run-bigpig/opsagent/pkg/agent"
	"github.com/run-bigpig/opsagent/pkg/config"
	"github.com/run-bigpig/opsagent/pkg/embedding"
	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/llm/openai"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/mcp"
	"github.com/run-bigpig/opsagent/pkg/retry"
	"github.com/run-bigpig/opsagent/pkg/tools"
	"github.com/run-bigpig/opsagent/pkg/tracing"
)

var investigateCmdDef = cli.Command{
	Name:      "investigate",
	Usage:     "Answer a question about the system using the diagnostic tools",
	ArgsUsage: "<question>",
	Action:    withSignals(cmdInvestigate),
}

var serveCmdDef = cli.Command{
	Name:  "serve",
	Usage: "Expose the diagnostic tools over MCP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address, or \"stdio\" to serve on standard input and output",
		},
	},
	Action: withSignals(cmdServe),
}

func cmdInvestigate(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("a question is required", 2)
	}

	rt := sessionOf(c)
	cfg := rt.cfg
	if cfg.LLM.APIKey == "" {
		return cli.Exit("an OpenAI API key is required (OPENAI_API_KEY)", 2)
	}

	llmOpts := []openai.Option{
		openai.WithModel(cfg.LLM.Model),
		openai.WithLogger(rt.logger),
		openai.WithRetry(retry.WithMaxAttempts(3)),
	}
	if cfg.LLM.Temperature > 0 {
		llmOpts = append(llmOpts, openai.WithTemperature(cfg.LLM.Temperature))
	}
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL))
	}

	servers := connectMCPServers(c.Context, cfg.MCP.Servers, rt.logger)
	defer func() {
		for _, s := range servers {
			_ = s.Close()
		}
	}()

	a, err := agent.NewAgent(
		agent.WithLLM(openai.NewClient(cfg.LLM.APIKey, llmOpts...)),
		agent.WithAgentConfig(cfg.Agent),
		agent.WithMaxIterations(cfg.Tools.MaxIterations),
		agent.WithLogger(rt.logger),
		agent.WithTools(rt.tools()...),
		agent.WithMCPServers(servers...),
	)
	if err != nil {
		return err
	}
	rt.tools = a.Tools

	err = a.Investigate(c.Context, question, c.App.Writer)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func cmdServe(c *cli.Context) error {
	rt := sessionOf(c)

	addr := c.String("addr")
	if addr == "" {
		addr = rt.cfg.MCP.Addr
	}

	server := mcp.NewServer(
		tools.NewRegistry(tracing.TraceTools(rt.tools())...),
		mcp.WithServerLogger(rt.logger),
	)
	return server.Serve(c.Context, addr)
}

// builtinTools returns run_command, plus search_runbooks when a Weaviate
// host is configured
func builtinTools(ctx context.Context, cfg *config.Config, logger logging.Logger) []interfaces.Tool {
	out := []interfaces.Tool{
		tools.NewCommandTool(cfg.Tools.AllowedCommands,
			tools.WithCommandTimeout(cfg.Tools.CommandTimeout),
			tools.WithCommandLogger(logger),
		),
	}

	if cfg.Weaviate.Host == "" {
		return out
	}

	opts := []tools.WeaviateOption{tools.WithWeaviateLogger(logger)}
	if cfg.LLM.APIKey != "" {
		clientCfg := goopenai.DefaultConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			clientCfg.BaseURL = cfg.LLM.BaseURL
		}
		opts = append(opts, tools.WithEmbedder(embedding.NewOpenAIEmbedderWithConfig(clientCfg, embedding.EmbeddingConfig{
			Model: embedding.DefaultModel,
		})))
	}

	searcher, err := tools.NewWeaviateSearcher(tools.WeaviateConfig{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
		APIKey: cfg.Weaviate.APIKey,
		Class:  cfg.Weaviate.Class,
	}, opts...)
	if err != nil {
		logger.Warn(ctx, "Runbook search disabled", map[string]interface{}{"error": err.Error()})
		return out
	}
	return append(out, tools.NewRunbookTool(searcher, 0))
}

// connectMCPServers connects to the configured upstream servers. A server
// that cannot be reached is skipped.
func connectMCPServers(ctx context.Context, configs []config.MCPServerConfig, logger logging.Logger) []interfaces.MCPServer {
	var servers []interfaces.MCPServer
	for _, sc := range configs {
		var (
			server *mcp.MCPServerImpl
			err    error
		)
		if sc.URL != "" {
			server, err = mcp.NewHTTPServer(ctx, mcp.HTTPServerConfig{BaseURL: sc.URL})
		} else {
			server, err = mcp.NewStdioServer(ctx, mcp.StdioServerConfig{Command: sc.Command, Args: sc.Args})
		}
		if err != nil {
			logger.Warn(ctx, "Failed to connect to MCP server", map[string]interface{}{
				"server": sc.Name,
				"error":  err.Error(),
			})
			continue
		}
		servers = append(servers, server)
	}
	return servers
}
