package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/tracing"
)

// StdioAddr selects the stdio transport instead of HTTP
const StdioAddr = "stdio"

// EndpointPath is where the HTTP transport accepts requests
const EndpointPath = "/mcp"

// ToolArgs is the input of every tool the server exposes. Arguments holds
// the tool's own JSON arguments.
type ToolArgs struct {
	Arguments string `json:"arguments" jsonschema:"required,description=JSON object with the tool arguments"`
}

// Server exposes the tools of a registry over MCP. Every tools/call is a
// root span of its own.
type Server struct {
	registry interfaces.ToolRegistry
	logger   logging.Logger
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithServerLogger sets the logger
func WithServerLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server for the tools in registry
func NewServer(registry interfaces.ToolRegistry, options ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		logger:   logging.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Call runs one tools/call request. A tool that reports failure is returned
// to the client as an error.
func (s *Server) Call(ctx context.Context, name string, args ToolArgs) (*mcplib.ToolResponse, error) {
	tool, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	result, err := tracing.TraceProtocolCall(ctx, name, args, func(ctx context.Context) (interfaces.ToolResult, error) {
		return tool.Execute(ctx, args.Arguments)
	})
	if err != nil {
		s.logger.Error(ctx, "MCP tool call failed", map[string]interface{}{"tool": name, "error": err.Error()})
		return nil, err
	}

	if failed, msg := result.Failure(); failed {
		s.logger.Info(ctx, "MCP tool reported failure", map[string]interface{}{"tool": name, "message": msg})
		if result.Output != "" && result.Output != msg {
			return nil, fmt.Errorf("%s\n%s", msg, result.Output)
		}
		return nil, errors.New(msg)
	}
	return mcplib.NewToolResponse(mcplib.NewTextContent(result.Output)), nil
}

// Register adds every registry tool to srv. Calls run under ctx.
func (s *Server) Register(ctx context.Context, srv *mcplib.Server) error {
	for _, tool := range s.registry.List() {
		name := tool.Name()
		handler := func(args ToolArgs) (*mcplib.ToolResponse, error) {
			return s.Call(ctx, name, args)
		}
		if err := srv.RegisterTool(name, tool.Description(), handler); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", name, err)
		}
	}
	return nil
}

// Serve serves on addr, or on stdio when addr is StdioAddr, until ctx is
// done
func (s *Server) Serve(ctx context.Context, addr string) error {
	var t transport.Transport
	if addr == StdioAddr {
		t = stdio.NewStdioServerTransport()
	} else {
		t = http.NewHTTPTransport(EndpointPath).WithAddr(addr)
	}

	srv := mcplib.NewServer(t,
		mcplib.WithName(tracing.DefaultServiceName),
		mcplib.WithVersion(tracing.Version),
	)
	if err := s.Register(ctx, srv); err != nil {
		return err
	}

	s.logger.Info(ctx, "Serving MCP tools", map[string]interface{}{
		"addr":  addr,
		"tools": len(s.registry.List()),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server stopped: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}
