package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/run-bigpig/opsagent/pkg/config"
	"github.com/run-bigpig/opsagent/pkg/interfaces"
	"github.com/run-bigpig/opsagent/pkg/logging"
	"github.com/run-bigpig/opsagent/pkg/tracing"
)

const sessionKey = "session"

// session is what Before prepares for the commands
type session struct {
	cfg    *config.Config
	logger logging.Logger

	// tools is read lazily by the tool-definition enricher, so commands may
	// extend it before the first LLM call
	tools func() []interfaces.Tool
}

func main() {
	err := newApp(os.Stdout, os.Stderr).Run(os.Args)
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	os.Exit(1)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "opsagent"
	app.Version = tracing.Version
	app.Usage = "Investigate production incidents with an LLM agent"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Aliases:   []string{"c"},
			Usage:     "Path to the YAML configuration file",
			EnvVars:   []string{"OPSAGENT_CONFIG"},
			TakesFile: true,
		},
	}
	app.ExitErrHandler = exitErrHandler
	app.Before = before
	app.After = after
	app.Commands = []*cli.Command{
		&investigateCmdDef,
		&serveCmdDef,
	}
	return app
}

// before loads configuration and initializes tracing. A tracing
// configuration error stops the process.
func before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logOpts := []logging.Option{logging.WithLevel(cfg.Log.Level)}
	if cfg.Log.JSON {
		logOpts = append(logOpts, logging.WithJSONOutput(c.App.ErrWriter))
	}
	logger := logging.New(logOpts...)

	rt := &session{cfg: cfg, logger: logger}
	rt.tools = func() []interfaces.Tool { return builtinTools(c.Context, cfg, logger) }
	c.App.Metadata = map[string]interface{}{sessionKey: rt}

	err = tracing.Initialize(c.Context, cfg.TracingConfig(),
		tracing.WithLogger(logger),
		tracing.WithConsoleWriter(c.App.ErrWriter),
		tracing.WithToolDefinitions(func() []tracing.ToolDefinition {
			return tracing.DefinitionsFromTools(rt.tools())
		}),
	)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	return nil
}

// exitErrHandler prints the error and leaves exiting to main
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.App.ErrWriter, "error: %s\n", err)
}

func after(c *cli.Context) error {
	tracing.Shutdown(context.Background())
	return nil
}

func sessionOf(c *cli.Context) *session {
	return c.App.Metadata[sessionKey].(*session)
}

// withSignals cancels the command context on SIGINT or SIGTERM
func withSignals(action cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		c.Context = ctx
		return action(c)
	}
}
