package tracing_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/optional"
	"github.com/run-bigpig/opsagent/pkg/tracing"
	"github.com/run-bigpig/opsagent/pkg/tracing/tracingtest"
)

// detach replaces the active span the way a scheduler with its own provider
// does, keeping every context value
func detach(t *testing.T, ctx context.Context) context.Context {
	t.Helper()
	private := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = private.Shutdown(context.Background()) })
	ctx, span := private.Tracer("scheduler").Start(ctx, "schedule", trace.WithNewRoot())
	t.Cleanup(func() { span.End() })
	return ctx
}

func double(ctx context.Context, x int) (int, error) {
	return x * 2, nil
}

func warnings(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), `"level":"warn"`)
}

func TestDisabledTracingRunsToolUntraced(t *testing.T) {
	tracing.ResetForTesting()
	t.Cleanup(tracing.ResetForTesting)

	var logs bytes.Buffer
	err := tracing.Initialize(context.Background(), tracing.Config{Enabled: false},
		tracing.WithLogger(logging.New(logging.WithJSONOutput(&logs))))
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusDisabled, tracing.CurrentStatus())

	var recording bool
	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t1", Description: "d"},
		tracing.Handler[int, int](func(ctx context.Context, x int) (int, error) {
			recording = trace.SpanFromContext(ctx).IsRecording()
			return double(ctx, x)
		}))

	got, err := h(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.False(t, recording)
	assert.Zero(t, warnings(&logs))
}

func TestToolSpanUnderInvestigation(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{CaptureContent: true})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t1", Description: "d"},
		tracing.Handler[string, string](func(ctx context.Context, in string) (string, error) {
			return "ok", nil
		}))

	err := tracing.TraceInvestigation(context.Background(), "sre", "why is disk full?", func(ctx context.Context) error {
		_, err := h(ctx, "df -h")
		return err
	})
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	root, ok := tracingtest.SpanByName(spans, "invoke_agent sre")
	require.True(t, ok)
	child, ok := tracingtest.SpanByName(spans, "t1.tool")
	require.True(t, ok)

	assert.False(t, root.Parent.IsValid())
	assert.Equal(t, root.SpanContext.SpanID(), child.Parent.SpanID())
	assert.Equal(t, root.SpanContext.TraceID(), child.SpanContext.TraceID())
	assert.Equal(t, codes.Ok, root.Status.Code)

	op, _ := tracingtest.Attr(child, tracing.AttrOperationName)
	assert.Equal(t, tracing.OperationExecuteTool, op)
	name, _ := tracingtest.Attr(child, tracing.AttrToolName)
	assert.Equal(t, "t1", name)
	callID, _ := tracingtest.Attr(child, tracing.AttrToolCallID)
	assert.NotEmpty(t, callID)
	result, _ := tracingtest.Attr(child, tracing.AttrToolResult)
	assert.Equal(t, "ok", result)
	args, _ := tracingtest.Attr(child, tracing.AttrToolArguments)
	assert.Equal(t, "df -h", args)

	input, _ := tracingtest.Attr(root, tracing.AttrInput)
	assert.Equal(t, "why is disk full?", input)
}

func TestContentNotCapturedByDefault(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "lookup"},
		tracing.Handler[map[string]string, string](func(ctx context.Context, in map[string]string) (string, error) {
			tracing.SetRootOutput(ctx, "secret answer")
			return "secret result", nil
		}))

	_, err := tracing.TraceProtocolCall(context.Background(), "lookup", map[string]string{"q": "secret"},
		func(ctx context.Context) (string, error) {
			return h(ctx, map[string]string{"q": "secret"})
		})
	require.NoError(t, err)

	for _, s := range exp.GetSpans() {
		for _, kv := range s.Attributes {
			assert.NotContains(t, kv.Value.Emit(), "secret", "span %s attribute %s", s.Name, kv.Key)
		}
	}
}

func TestProtocolCallReportedFailure(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	result, err := tracing.TraceProtocolCall(context.Background(), "run_command", nil,
		func(ctx context.Context) (interfaces.ToolResult, error) {
			return interfaces.ToolResult{Output: "partial", Failed: true, Message: "upstream timeout"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "partial", result.Output)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	root := spans[0]
	assert.Equal(t, "tools/call run_command", root.Name)
	assert.Equal(t, codes.Error, root.Status.Code)
	assert.Equal(t, "upstream timeout", root.Status.Description)
	assert.Empty(t, root.Events)

	method, _ := tracingtest.Attr(root, tracing.AttrMCPMethodName)
	assert.Equal(t, "tools/call", method)
}

func TestToolLevelFailureFlagStaysOK(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "run_command"},
		tracing.Handler[string, interfaces.ToolResult](func(ctx context.Context, in string) (interfaces.ToolResult, error) {
			return interfaces.ToolResult{Failed: true, Message: "exit status 1"}, nil
		}))

	_, err := tracing.TraceProtocolCall(context.Background(), "run_command", "false",
		func(ctx context.Context) (interfaces.ToolResult, error) {
			return h(ctx, "false")
		})
	require.NoError(t, err)

	tool, ok := tracingtest.SpanByName(exp.GetSpans(), "run_command.tool")
	require.True(t, ok)
	assert.Equal(t, codes.Ok, tool.Status.Code)

	root, ok := tracingtest.SpanByName(exp.GetSpans(), "tools/call run_command")
	require.True(t, ok)
	assert.Equal(t, codes.Error, root.Status.Code)
	assert.Equal(t, "exit status 1", root.Status.Description)
}

func TestNilPointerResultIsNotAFailure(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	result, err := tracing.TraceProtocolCall(context.Background(), "noop", nil,
		func(ctx context.Context) (*interfaces.ToolResult, error) {
			return nil, nil
		})
	require.NoError(t, err)
	assert.Nil(t, result)
	require.Len(t, exp.GetSpans(), 1)
	assert.Equal(t, codes.Ok, exp.GetSpans()[0].Status.Code)
}

func TestToolErrorIsRecordedAndReturned(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	boom := errors.New("connection refused")
	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t1"},
		tracing.Handler[int, int](func(ctx context.Context, x int) (int, error) {
			return 0, boom
		}))

	err := tracing.TraceInvestigation(context.Background(), "sre", "q", func(ctx context.Context) error {
		_, err := h(ctx, 1)
		return err
	})
	assert.Same(t, boom, err)

	spans := exp.GetSpans()
	tool, ok := tracingtest.SpanByName(spans, "t1.tool")
	require.True(t, ok)
	assert.Equal(t, codes.Error, tool.Status.Code)
	assert.Equal(t, "connection refused", tool.Status.Description)
	require.Len(t, tool.Events, 1)
	assert.Equal(t, "exception", tool.Events[0].Name)

	root, ok := tracingtest.SpanByName(spans, "invoke_agent sre")
	require.True(t, ok)
	assert.Equal(t, codes.Error, root.Status.Code)
}

func TestToolPanicIsRecordedAndReraised(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t1"},
		tracing.Handler[int, int](func(ctx context.Context, x int) (int, error) {
			panic("index out of range")
		}))

	assert.PanicsWithValue(t, "index out of range", func() {
		_ = tracing.TraceInvestigation(context.Background(), "sre", "q", func(ctx context.Context) error {
			_, err := h(ctx, 1)
			return err
		})
	})

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, codes.Error, s.Status.Code, s.Name)
		assert.True(t, s.EndTime.After(s.StartTime) || s.EndTime.Equal(s.StartTime), s.Name)
	}
}

func TestToolsParentToRootAcrossDetachedScheduler(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "probe"},
		tracing.Handler[int, int](double))

	const n = 8
	err := tracing.TraceInvestigation(context.Background(), "sre", "q", func(ctx context.Context) error {
		ctx = detach(t, ctx)

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := h(ctx, i); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		return <-errs
	})
	require.NoError(t, err)

	spans := exp.GetSpans()
	root, ok := tracingtest.SpanByName(spans, "invoke_agent sre")
	require.True(t, ok)

	var tools tracetest.SpanStubs
	for _, s := range spans {
		if s.Name == "probe.tool" {
			tools = append(tools, s)
		}
	}
	require.Len(t, tools, n)
	for _, s := range tools {
		assert.Equal(t, root.SpanContext.SpanID(), s.Parent.SpanID())
		assert.Equal(t, root.SpanContext.TraceID(), s.SpanContext.TraceID())
	}
}

func TestNestedInvestigationShadowsRoot(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t"}, tracing.Handler[int, int](double))

	err := tracing.TraceInvestigation(context.Background(), "outer", "q", func(ctx context.Context) error {
		if err := tracing.TraceInvestigation(ctx, "inner", "q", func(ctx context.Context) error {
			_, err := h(detach(t, ctx), 1)
			return err
		}); err != nil {
			return err
		}
		_, err := h(detach(t, ctx), 2)
		return err
	})
	require.NoError(t, err)

	spans := exp.GetSpans()
	outer, _ := tracingtest.SpanByName(spans, "invoke_agent outer")
	inner, _ := tracingtest.SpanByName(spans, "invoke_agent inner")
	assert.Equal(t, outer.SpanContext.SpanID(), inner.Parent.SpanID())

	var parents []trace.SpanID
	for _, s := range spans {
		if s.Name == "t.tool" {
			parents = append(parents, s.Parent.SpanID())
		}
	}
	assert.Equal(t, []trace.SpanID{inner.SpanContext.SpanID(), outer.SpanContext.SpanID()}, parents)
}

func TestRootOutputCapturedWhenEnabled(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{CaptureContent: true})

	err := tracing.TraceInvestigation(context.Background(), "sre", "q", func(ctx context.Context) error {
		tracing.SetRootOutput(detach(t, ctx), "disk is full")
		assert.True(t, tracing.GetRootSpan(ctx).IsRecording())
		return nil
	})
	require.NoError(t, err)

	root := exp.GetSpans()[0]
	out, _ := tracingtest.Attr(root, tracing.AttrOutput)
	assert.Equal(t, "disk is full", out)
}

func TestGetRootSpanWithoutRoot(t *testing.T) {
	span := tracing.GetRootSpan(context.Background())
	assert.False(t, span.IsRecording())
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() { tracing.SetRootOutput(context.Background(), "x") })
}

func TestTracedToolDelegates(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	tool := tracing.TraceTool(&echoTool{})
	assert.Same(t, tool, tracing.TraceTool(tool))
	assert.Equal(t, "echo", tool.Name())

	res, err := tool.Execute(context.Background(), `{"text":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hi"}`, res.Output)

	s, ok := tracingtest.SpanByName(exp.GetSpans(), "echo.tool")
	require.True(t, ok)
	desc, _ := tracingtest.Attr(s, tracing.AttrToolDescription)
	assert.Equal(t, "Echo the arguments", desc)
}

func TestInstrumentationAbsentWarnsOnce(t *testing.T) {
	tracing.ResetForTesting()
	t.Cleanup(tracing.ResetForTesting)

	exp := tracetest.NewInMemoryExporter()
	loader := optional.NewLoader()
	loader.Register(tracing.ExporterID(tracing.ExporterConsole), func() (optional.Module, error) {
		return tracing.ExporterFactory(func(context.Context, tracing.ExporterSettings) (sdktrace.SpanExporter, error) {
			return exp, nil
		}), nil
	})

	var logs bytes.Buffer
	err := tracing.Initialize(context.Background(), tracing.Config{Enabled: true},
		tracing.WithLoader(loader),
		tracing.WithLogger(logging.New(logging.WithJSONOutput(&logs))))
	require.NoError(t, err)
	assert.Equal(t, tracing.StatusUnavailable, tracing.CurrentStatus())
	assert.Equal(t, 1, warnings(&logs))

	assert.NotPanics(t, func() {
		_, span := tracing.GetTracer().Start(context.Background(), "x")
		span.End()
	})

	h := tracing.WithToolTracing(tracing.ToolConfig{Name: "t1"}, tracing.Handler[int, int](double))
	got, err := h(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Empty(t, exp.GetSpans())
}

func TestInitializeTwice(t *testing.T) {
	tracingtest.Enable(t, tracingtest.Config{})

	err := tracing.Initialize(context.Background(), tracing.Config{Enabled: false})
	assert.ErrorIs(t, err, tracing.ErrAlreadyInitialized)
	assert.Equal(t, tracing.StatusReady, tracing.CurrentStatus())
}

func TestShutdownFlushes(t *testing.T) {
	exp := tracingtest.Enable(t, tracingtest.Config{})

	_, span := tracing.GetTracer().Start(context.Background(), "work")
	span.End()
	require.Len(t, exp.GetSpans(), 1)

	tracing.Shutdown(context.Background())
	assert.NotPanics(t, func() { tracing.Shutdown(context.Background()) })
}

type echoTool struct{}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the arguments" }
func (e *echoTool) Parameters() map[string]interfaces.ParameterSpec {
	return map[string]interfaces.ParameterSpec{
		"text": {Type: "string", Required: true},
	}
}
func (e *echoTool) Execute(ctx context.Context, args string) (interfaces.ToolResult, error) {
	if args == "" {
		return interfaces.ToolResult{}, fmt.Errorf("no arguments")
	}
	return interfaces.ToolResult{Output: args}, nil
}
