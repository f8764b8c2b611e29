package tracing

import (
	"errors"
	"fmt"
	"strings"
)

// Exporter kinds
const (
	// ExporterConsole writes spans to a local writer for debugging
	ExporterConsole = "console"

	// ExporterOTLP sends spans to an OTLP/HTTP collector
	ExporterOTLP = "otlp"

	// ExporterOTLPGRPC sends spans to an OTLP/gRPC collector
	ExporterOTLPGRPC = "otlp-grpc"

	// ExporterLangfuse sends spans to Langfuse as observations
	ExporterLangfuse = "langfuse"
)

// DefaultServiceName is used when Config.ServiceName is empty
const DefaultServiceName = "opsagent"

// Config contains the startup tracing configuration. It is read once by
// Initialize and fixed for the life of the process.
type Config struct {
	// Enabled determines whether tracing is initialized at all
	Enabled bool

	// Exporter is one of the Exporter* kinds. Empty means console.
	Exporter string

	// Endpoint is the collector destination for network exporters
	Endpoint string

	// Insecure allows plaintext connections for otlp-grpc endpoints
	// given as host:port
	Insecure bool

	// CaptureContent allows questions, answers and tool payloads on spans.
	// Off by default because it exports them verbatim.
	CaptureContent bool

	// ServiceName is the name of the service
	ServiceName string
}

func (c Config) exporterKind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Exporter))
	if kind == "" {
		return ExporterConsole
	}
	return kind
}

func (c Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

var (
	// ErrInvalidConfig is matched by every ConfigError
	ErrInvalidConfig = errors.New("invalid tracing configuration")

	// ErrAlreadyInitialized is returned by a second Initialize
	ErrAlreadyInitialized = errors.New("tracing already initialized")
)

// ConfigError is a fatal startup error: tracing was requested but cannot be
// set up as asked
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrInvalidConfig.Error(), e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidConfig) hold
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
