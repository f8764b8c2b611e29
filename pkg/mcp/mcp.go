package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcplib "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// MCPServerImpl is the implementation of interfaces.MCPServer
type MCPServerImpl struct {
	client *mcplib.Client
	cmd    *exec.Cmd
}

// NewMCPServer creates a new MCPServer with the given transport
func NewMCPServer(ctx context.Context, transport transport.Transport) (*MCPServerImpl, error) {
	client := mcplib.NewClient(transport)
	if _, err := client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return &MCPServerImpl{
		client: client,
	}, nil
}

// ListTools lists the tools available on the MCP server
func (s *MCPServerImpl) ListTools(ctx context.Context) ([]interfaces.MCPTool, error) {
	resp, err := s.client.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}

	tools := make([]interfaces.MCPTool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		description := ""
		if t.Description != nil {
			description = *t.Description
		}

		tools = append(tools, interfaces.MCPTool{
			Name:        t.Name,
			Description: description,
			Schema:      t.InputSchema,
		})
	}

	return tools, nil
}

// CallTool calls a tool on the MCP server. Only text content is kept.
func (s *MCPServerImpl) CallTool(ctx context.Context, name string, args interface{}) (*interfaces.MCPToolResponse, error) {
	resp, err := s.client.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}

	return &interfaces.MCPToolResponse{
		Content: textOf(resp.Content),
	}, nil
}

// Close stops the server process of a stdio server
func (s *MCPServerImpl) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to stop MCP server: %w", err)
	}
	_ = s.cmd.Wait()
	return nil
}

func textOf(content []*mcplib.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if c != nil && c.TextContent != nil {
			parts = append(parts, c.TextContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// StdioServerConfig holds configuration for a stdio MCP server
type StdioServerConfig struct {
	Command string
	Args    []string
	Env     []string
}

// NewStdioServer starts the server command and talks to it over its stdio
func NewStdioServer(ctx context.Context, config StdioServerConfig) (*MCPServerImpl, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}

	commandPath, err := exec.LookPath(config.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", config.Command, err)
	}

	// #nosec G204 - command comes from operator configuration
	cmd := exec.CommandContext(ctx, commandPath, config.Args...)
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), config.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	server, err := NewMCPServer(ctx, stdio.NewStdioServerTransportWithIO(stdout, stdin))
	if err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil {
			return nil, fmt.Errorf("failed to create server: %v and failed to kill process: %v", err, killErr)
		}
		return nil, err
	}
	server.cmd = cmd

	return server, nil
}

// HTTPServerConfig holds configuration for an HTTP MCP server
type HTTPServerConfig struct {
	BaseURL string
	Path    string
	Token   string
}

// NewHTTPServer creates a new MCPServer that communicates over HTTP
func NewHTTPServer(ctx context.Context, config HTTPServerConfig) (*MCPServerImpl, error) {
	transport := http.NewHTTPClientTransport(config.BaseURL + config.Path)
	if config.Token != "" {
		transport.WithHeader("Authorization", "Bearer "+config.Token)
	}

	return NewMCPServer(ctx, transport)
}
