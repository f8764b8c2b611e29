package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ToolSpan runs fn inside a tool span named after the tool. The span is a
// child of whatever span ctx carries. Errors and panics are recorded on the
// span and handed back unchanged.
func ToolSpan[T any](ctx context.Context, in *Instrumentor, name string, input interface{}, fn func(context.Context) (T, error)) (result T, err error) {
	ctx, span := in.tracer.Start(ctx, ToolSpanName(name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrSpanKind, SpanKindTool),
			attribute.String(AttrEntityName, name),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r), trace.WithStackTrace(true))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			span.End()
			panic(r)
		}
		span.End()
	}()

	if in.traceContent {
		span.SetAttributes(attribute.String(AttrEntityInput, Serialize(input)))
	}

	result, err = fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if in.traceContent {
		span.SetAttributes(attribute.String(AttrEntityOutput, Serialize(result)))
	}
	span.SetStatus(codes.Ok, "")

	return result, nil
}
