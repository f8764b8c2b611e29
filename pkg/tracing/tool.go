package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/opsagent/pkg/instrumentation"
	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// Handler is a tool implementation with typed input and output
type Handler[In, Out any] func(ctx context.Context, in In) (Out, error)

// ToolConfig describes a tool for its spans
type ToolConfig struct {
	Name        string
	Description string
}

// WithToolTracing wraps h so every call gets a tool span parented to the
// stored root. The wrapped handler returns exactly what h returns. Tracing
// state is read per call, so wrapping before Initialize is fine.
func WithToolTracing[In, Out any](cfg ToolConfig, h Handler[In, Out]) Handler[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		return RunWithStored(ctx, func(ctx context.Context) (Out, error) {
			s := load()
			run := func(ctx context.Context) (Out, error) {
				setToolAttributes(ctx, cfg, in, s.captureContent)
				out, err := h(ctx, in)
				if err == nil && s.captureContent {
					trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrToolResult, instrumentation.Serialize(out)))
				}
				return out, err
			}

			if s.instrumentor != nil {
				return instrumentation.ToolSpan(ctx, s.instrumentor, cfg.Name, in, run)
			}
			return plainToolSpan(ctx, cfg.Name, run)
		})
	}
}

func setToolAttributes(ctx context.Context, cfg ToolConfig, in interface{}, capture bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(AttrOperationName, OperationExecuteTool),
		attribute.String(AttrToolName, cfg.Name),
		attribute.String(AttrToolType, ToolTypeFunction),
		attribute.String(AttrToolCallID, uuid.NewString()),
	)
	if cfg.Description != "" {
		span.SetAttributes(attribute.String(AttrToolDescription, cfg.Description))
	}
	if capture {
		span.SetAttributes(attribute.String(AttrToolArguments, instrumentation.Serialize(in)))
	}
}

// plainToolSpan is used when the instrumentation layer is not running
func plainToolSpan[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := GetTracer().Start(ctx, OperationExecuteTool+" "+name, trace.WithSpanKind(trace.SpanKindInternal))
	defer finishSpan(span)

	result, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// tracedTool is an interfaces.Tool whose Execute runs under WithToolTracing
type tracedTool struct {
	interfaces.Tool
	execute Handler[string, interfaces.ToolResult]
}

// TraceTool wraps a tool so each Execute is traced
func TraceTool(tool interfaces.Tool) interfaces.Tool {
	if t, ok := tool.(*tracedTool); ok {
		return t
	}
	return &tracedTool{
		Tool: tool,
		execute: WithToolTracing(ToolConfig{
			Name:        tool.Name(),
			Description: tool.Description(),
		}, Handler[string, interfaces.ToolResult](tool.Execute)),
	}
}

// TraceTools wraps every tool in tools
func TraceTools(tools []interfaces.Tool) []interfaces.Tool {
	traced := make([]interfaces.Tool, len(tools))
	for i, t := range tools {
		traced[i] = TraceTool(t)
	}
	return traced
}

func (t *tracedTool) Execute(ctx context.Context, args string) (interfaces.ToolResult, error) {
	return t.execute(ctx, args)
}

// DefinitionsFromTools describes tools for the tool-definition enricher
func DefinitionsFromTools(tools []interfaces.Tool) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  interfaces.JSONSchema(t.Parameters()),
		})
	}
	return defs
}
