package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
)

// maxOutput caps what a command can hand back to the model
const maxOutput = 16 * 1024

// CommandTool runs allowlisted diagnostic commands on the local host.
// Commands run without a shell, so pipes and redirects are not available.
type CommandTool struct {
	allowed map[string]bool
	timeout time.Duration
	logger  logging.Logger
}

// CommandOption configures a CommandTool
type CommandOption func(*CommandTool)

// WithCommandTimeout bounds each command
func WithCommandTimeout(timeout time.Duration) CommandOption {
	return func(c *CommandTool) {
		c.timeout = timeout
	}
}

// WithCommandLogger sets the logger
func WithCommandLogger(logger logging.Logger) CommandOption {
	return func(c *CommandTool) {
		c.logger = logger
	}
}

// NewCommandTool allows only the named executables
func NewCommandTool(allowed []string, options ...CommandOption) *CommandTool {
	c := &CommandTool{
		allowed: make(map[string]bool, len(allowed)),
		timeout: 30 * time.Second,
		logger:  logging.Nop(),
	}
	for _, name := range allowed {
		c.allowed[strings.ToLower(name)] = true
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Name implements interfaces.Tool
func (c *CommandTool) Name() string {
	return "run_command"
}

// Description implements interfaces.Tool
func (c *CommandTool) Description() string {
	return "Run a read-only diagnostic command on the host and return its output. No shell features such as pipes are available."
}

// Parameters implements interfaces.Tool
func (c *CommandTool) Parameters() map[string]interfaces.ParameterSpec {
	return map[string]interfaces.ParameterSpec{
		"command": {
			Type:        "string",
			Description: "Command line to run, e.g. \"df -h\"",
			Required:    true,
		},
	}
}

type commandArgs struct {
	Command string `json:"command"`
}

// Execute implements interfaces.Tool. A command that runs but fails, times
// out or is not allowed is reported through the result, not as an error.
func (c *CommandTool) Execute(ctx context.Context, args string) (interfaces.ToolResult, error) {
	var in commandArgs
	if err := sonic.UnmarshalString(args, &in); err != nil {
		return interfaces.ToolResult{}, fmt.Errorf("invalid run_command arguments: %w", err)
	}

	argv := strings.Fields(in.Command)
	if len(argv) == 0 {
		return interfaces.ToolResult{}, errors.New("invalid run_command arguments: command is empty")
	}
	if !c.allowed[strings.ToLower(argv[0])] {
		c.logger.Warn(ctx, "Rejected command outside the allowlist", map[string]interface{}{"command": argv[0]})
		return interfaces.ToolResult{
			Failed:  true,
			Message: fmt.Sprintf("command %q is not allowed", argv[0]),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 - executable is checked against the allowlist
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Debug(ctx, "Running command", map[string]interface{}{"command": in.Command})
	err := cmd.Run()
	output := truncate(out.String(), maxOutput)

	if ctx.Err() == context.DeadlineExceeded {
		return interfaces.ToolResult{
			Output:  output,
			Failed:  true,
			Message: fmt.Sprintf("command timed out after %s", c.timeout),
		}, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return interfaces.ToolResult{Output: output}, nil
	case errors.As(err, &exitErr):
		return interfaces.ToolResult{
			Output:  output,
			Failed:  true,
			Message: exitErr.Error(),
		}, nil
	default:
		return interfaces.ToolResult{
			Failed:  true,
			Message: err.Error(),
		}, nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[output truncated]"
}
