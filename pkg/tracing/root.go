package tracing

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/opsagent/pkg/instrumentation"
	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// TraceInvestigation runs one agent investigation under an
// "invoke_agent <agentName>" root span. Every tool call made inside body
// parents to that span, even across schedulers that drop the active span.
func TraceInvestigation(ctx context.Context, agentName, question string, body func(context.Context) error) error {
	ctx, span := GetTracer().Start(ctx, "invoke_agent "+agentName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrOperationName, OperationInvokeAgent),
			attribute.String(AttrAgentName, agentName),
		),
	)
	defer finishSpan(span)

	if CaptureContent() {
		span.SetAttributes(attribute.String(AttrInput, question))
	}

	_, err := StoreAndRun(ctx, span, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// TraceProtocolCall runs one MCP tools/call request under a
// "tools/call <toolName>" root span. A result that reports failure marks the
// span as an error without an exception event and is still returned normally.
func TraceProtocolCall[T any](ctx context.Context, toolName string, args interface{}, body func(context.Context) (T, error)) (T, error) {
	ctx, span := GetTracer().Start(ctx, MCPMethodToolsCall+" "+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrOperationName, OperationExecuteTool),
			attribute.String(AttrToolName, toolName),
			attribute.String(AttrMCPMethodName, MCPMethodToolsCall),
		),
	)
	defer finishSpan(span)

	capture := CaptureContent()
	if capture {
		span.SetAttributes(attribute.String(AttrInput, instrumentation.Serialize(args)))
	}

	result, err := StoreAndRun(ctx, span, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if capture {
		span.SetAttributes(attribute.String(AttrOutput, instrumentation.Serialize(result)))
	}

	if failed, message := failureOf(result); failed {
		span.SetStatus(codes.Error, message)
		return result, nil
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// finishSpan ends span, recording a panic in flight before passing it on.
// It must be deferred directly.
func finishSpan(span trace.Span) {
	if r := recover(); r != nil {
		span.RecordError(fmt.Errorf("panic: %v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, fmt.Sprint(r))
		span.End()
		panic(r)
	}
	span.End()
}

// failureOf reads the failure flag of a result, if it carries one
func failureOf(result interface{}) (bool, string) {
	reporter, ok := result.(interfaces.FailureReporter)
	if !ok {
		return false, ""
	}
	if v := reflect.ValueOf(reporter); v.Kind() == reflect.Ptr && v.IsNil() {
		return false, ""
	}
	return reporter.Failure()
}
