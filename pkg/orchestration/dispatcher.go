package orchestration

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
)

// ErrUnknownTool is returned for calls naming a tool that is not registered
var ErrUnknownTool = errors.New("unknown tool")

// CallStatus represents the outcome of a tool call
type CallStatus string

const (
	// CallCompleted indicates the tool ran and reported success
	CallCompleted CallStatus = "completed"

	// CallReportedFailure indicates the tool ran and reported a failure
	CallReportedFailure CallStatus = "reported_failure"

	// CallFailed indicates the tool could not run
	CallFailed CallStatus = "failed"
)

// Result is the outcome of one tool call, in the order the calls were given
type Result struct {
	Call   interfaces.ToolCall
	Status CallStatus
	Output interfaces.ToolResult
	Err    error
}

// Content is what the model is shown for this call
func (r Result) Content() string {
	switch r.Status {
	case CallFailed:
		return fmt.Sprintf("error: %v", r.Err)
	case CallReportedFailure:
		_, msg := r.Output.Failure()
		if r.Output.Output != "" && r.Output.Output != msg {
			return fmt.Sprintf("failed: %s\n%s", msg, r.Output.Output)
		}
		return "failed: " + msg
	default:
		return r.Output.Output
	}
}

// Dispatcher runs the tool calls of one model turn concurrently.
//
// Each batch runs under a scheduling span that the dispatcher starts as a new
// root from its own tracer provider. That span replaces whatever span the
// caller's context carried, so tools see a foreign parent unless they
// restore their own.
type Dispatcher struct {
	registry interfaces.ToolRegistry
	tracer   trace.Tracer
	limit    int
	logger   logging.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTracerProvider sets the provider for scheduling spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer("opsagent/orchestration")
	}
}

// WithConcurrency bounds how many calls run at once. Zero or less means no
// bound.
func WithConcurrency(limit int) Option {
	return func(d *Dispatcher) {
		d.limit = limit
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher resolving tools from registry. Its
// scheduling spans come from a private provider that exports nowhere.
func NewDispatcher(registry interfaces.ToolRegistry, options ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		tracer:   sdktrace.NewTracerProvider().Tracer("opsagent/orchestration"),
		limit:    4,
		logger:   logging.Nop(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Dispatch runs calls and returns one Result per call in input order. A
// failing call never cancels its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []interfaces.ToolCall) []Result {
	results := make([]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	ctx, span := d.tracer.Start(ctx, "schedule tool calls", trace.WithNewRoot())
	defer span.End()

	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}

	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.run(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) run(ctx context.Context, call interfaces.ToolCall) Result {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn(ctx, "Model called an unknown tool", map[string]interface{}{"tool": call.Name})
		return Result{Call: call, Status: CallFailed, Err: fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)}
	}

	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		d.logger.Error(ctx, "Tool call failed", map[string]interface{}{"tool": call.Name, "error": err.Error()})
		return Result{Call: call, Status: CallFailed, Output: out, Err: err}
	}
	if failed, msg := out.Failure(); failed {
		d.logger.Info(ctx, "Tool reported failure", map[string]interface{}{"tool": call.Name, "message": msg})
		return Result{Call: call, Status: CallReportedFailure, Output: out}
	}
	return Result{Call: call, Status: CallCompleted, Output: out}
}
