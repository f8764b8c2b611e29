package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/run-bigpig/opsagent/pkg/instrumentation"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/optional"
)

// Status is where the process-wide tracing lifecycle stands
type Status int

const (
	// StatusUninitialized means Initialize has not run
	StatusUninitialized Status = iota

	// StatusDisabled means tracing was not requested
	StatusDisabled

	// StatusUnavailable means tracing was requested but the instrumentation
	// layer is not part of this build
	StatusUnavailable

	// StatusReady means spans are recorded and exported
	StatusReady
)

// String implements fmt.Stringer
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusDisabled:
		return "disabled"
	case StatusUnavailable:
		return "unavailable"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// state is written once by Initialize and only read afterwards
type state struct {
	status         Status
	captureContent bool
	instrumentor   *instrumentation.Instrumentor
	logger         logging.Logger
}

var (
	initMu  sync.Mutex
	current atomic.Pointer[state]

	uninitialized = &state{status: StatusUninitialized, logger: logging.Nop()}
)

func load() *state {
	if s := current.Load(); s != nil {
		return s
	}
	return uninitialized
}

// CurrentStatus reports the tracing lifecycle state
func CurrentStatus() Status {
	return load().status
}

// CaptureContent reports whether payloads may be written to spans. It is
// fixed by Initialize.
func CaptureContent() bool {
	return load().captureContent
}

// Option configures Initialize
type Option func(*options)

type options struct {
	loader          *optional.Loader
	logger          logging.Logger
	toolDefinitions func() []ToolDefinition
	consoleWriter   io.Writer
}

// WithLoader resolves exporters and the instrumentation layer from l
// instead of optional.Default
func WithLoader(l *optional.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithLogger sets the logger for startup warnings and shutdown failures
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithToolDefinitions supplies the tool list attached to LLM-call spans.
// It is called at most once, on the first matching span.
func WithToolDefinitions(source func() []ToolDefinition) Option {
	return func(o *options) {
		o.toolDefinitions = source
	}
}

// WithConsoleWriter sets where the console exporter writes
func WithConsoleWriter(w io.Writer) Option {
	return func(o *options) {
		o.consoleWriter = w
	}
}

// Initialize decides once per process whether and how spans are exported.
//
// A disabled config leaves the OpenTelemetry default no-op provider in place.
// An enabled config that cannot be honored (unknown or missing exporter,
// missing destination) returns a *ConfigError and must stop startup. A
// missing instrumentation layer is not fatal: one warning is logged and
// tracing stays no-op.
func Initialize(ctx context.Context, cfg Config, opts ...Option) error {
	o := &options{
		loader: optional.Default,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	initMu.Lock()
	defer initMu.Unlock()

	if current.Load() != nil {
		return ErrAlreadyInitialized
	}

	if !cfg.Enabled {
		current.Store(&state{status: StatusDisabled, logger: o.logger})
		return nil
	}

	exporter, err := resolveExporter(ctx, cfg, o)
	if err != nil {
		return err
	}

	module, err := o.loader.Load(instrumentation.ID)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return &ConfigError{Field: "instrumentation", Reason: "failed to load", Err: err}
	}
	if module == nil {
		_ = exporter.Shutdown(ctx)
		o.logger.Warn(ctx, "Tracing requested but the instrumentation package is not available; continuing without tracing", map[string]interface{}{
			"package": instrumentation.ID,
		})
		current.Store(&state{status: StatusUnavailable, logger: o.logger})
		return nil
	}

	pkg, ok := module.(*instrumentation.Package)
	if !ok || pkg.Init == nil {
		_ = exporter.Shutdown(ctx)
		return &ConfigError{Field: "instrumentation", Reason: fmt.Sprintf("unexpected module type %T", module)}
	}

	in, err := pkg.Init(ctx, instrumentation.Options{
		ServiceName:    cfg.serviceName(),
		Exporter:       exporter,
		DisableBatch:   true,
		TraceContent:   cfg.CaptureContent,
		SpanProcessors: []sdktrace.SpanProcessor{NewToolDefinitionEnricher(o.toolDefinitions)},
	})
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return &ConfigError{Field: "instrumentation", Reason: "failed to initialize", Err: err}
	}

	current.Store(&state{
		status:         StatusReady,
		captureContent: cfg.CaptureContent,
		instrumentor:   in,
		logger:         o.logger,
	})
	o.logger.Info(ctx, "Tracing initialized", map[string]interface{}{
		"exporter":        cfg.exporterKind(),
		"endpoint":        normalizedDestination(cfg),
		"capture_content": cfg.CaptureContent,
		"instrumentation": pkg.Version,
	})

	return nil
}

func resolveExporter(ctx context.Context, cfg Config, o *options) (sdktrace.SpanExporter, error) {
	kind := cfg.exporterKind()
	switch kind {
	case ExporterConsole, ExporterLangfuse:
	case ExporterOTLP, ExporterOTLPGRPC:
		if normalizedDestination(cfg) == "" {
			return nil, &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("required for the %s exporter", kind)}
		}
	default:
		return nil, &ConfigError{Field: "exporter", Reason: fmt.Sprintf("unknown exporter %q", cfg.Exporter)}
	}

	module, err := o.loader.Load(ExporterID(kind))
	if err != nil {
		return nil, &ConfigError{Field: "exporter", Reason: fmt.Sprintf("failed to load %s exporter", kind), Err: err}
	}
	if module == nil {
		return nil, &ConfigError{Field: "exporter", Reason: fmt.Sprintf("%s exporter is not available in this build", kind)}
	}
	factory, ok := module.(ExporterFactory)
	if !ok {
		return nil, &ConfigError{Field: "exporter", Reason: fmt.Sprintf("unexpected module type %T for %s exporter", module, kind)}
	}

	exporter, err := factory(ctx, ExporterSettings{
		Endpoint: normalizedDestination(cfg),
		Insecure: cfg.Insecure,
		Writer:   o.consoleWriter,
	})
	if err != nil {
		return nil, &ConfigError{Field: "exporter", Reason: fmt.Sprintf("failed to create %s exporter", kind), Err: err}
	}
	return exporter, nil
}

// normalizedDestination applies the OTLP/HTTP path rule only where it belongs
func normalizedDestination(cfg Config) string {
	switch cfg.exporterKind() {
	case ExporterOTLP:
		return NormalizeEndpoint(cfg.Endpoint)
	case ExporterConsole:
		return ""
	default:
		return cfg.Endpoint
	}
}

// Shutdown flushes finished spans and stops the provider. Failures are
// logged and never retried.
func Shutdown(ctx context.Context) {
	s := load()
	if s.status != StatusReady || s.instrumentor == nil {
		return
	}

	if err := s.instrumentor.ForceFlush(ctx); err != nil {
		s.logger.Error(ctx, "Failed to flush spans", map[string]interface{}{"error": err.Error()})
	}
	if err := s.instrumentor.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "Failed to shut down tracer provider", map[string]interface{}{"error": err.Error()})
	}
}

// ResetForTesting shuts down any running provider and returns the package to
// its uninitialized state. Only tests should call it.
func ResetForTesting() {
	initMu.Lock()
	defer initMu.Unlock()

	if s := current.Load(); s != nil && s.instrumentor != nil {
		_ = s.instrumentor.Shutdown(context.Background())
	}
	current.Store(nil)
	otel.SetTracerProvider(noop.NewTracerProvider())
}
