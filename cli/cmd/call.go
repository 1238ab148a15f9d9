// Package cmd implements the tether CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/tetherproc/tether/cli/config"
	"github.com/tetherproc/tether/proxy"
)

// Exit codes for the call command.
const (
	exitSuccess     = 0
	exitRejection   = 1
	exitWorkerCrash = 2
)

// CallCommand returns the call command: spawn a worker, invoke one method on
// the remote object, print the result as JSON, dispose.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:  "call",
		Usage: "Invoke a method on a remote object hosted in a worker process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to tether.yaml config file",
			},
			&cli.StringFlag{
				Name:  "worker",
				Usage: "Path to worker binary",
			},
			&cli.StringSliceFlag{
				Name:  "worker-arg",
				Usage: "Extra argument for the worker binary (repeatable)",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "Working directory for the worker",
			},
			&cli.StringSliceFlag{
				Name:  "plugin",
				Usage: "Plugin name forwarded to the worker bootstrap (repeatable)",
			},
			&cli.StringFlag{
				Name:  "require",
				Usage: "Require path selecting the receiver factory in the worker",
			},
			&cli.StringFlag{
				Name:     "method",
				Usage:    "Method name to invoke",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "args",
				Usage: "Method arguments as a JSON array",
				Value: "[]",
			},
			&cli.StringFlag{
				Name:  "ctor-args",
				Usage: "Constructor arguments for the remote object as a JSON array",
				Value: "[]",
			},
			&cli.DurationFlag{
				Name:  "dispose-timeout",
				Usage: "Bound on the wait for graceful worker shutdown",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Bound on the call itself (0 = none)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: callAction,
	}
}

func callAction(c *cli.Context) error {
	opts, err := buildOptions(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitRejection)
	}

	var args []any
	if err := json.Unmarshal([]byte(c.String("args")), &args); err != nil {
		return cli.Exit(fmt.Sprintf("Error: invalid --args JSON: %v", err), exitRejection)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	handle, err := proxy.Spawn(ctx, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitWorkerCrash)
	}
	defer handle.Dispose(context.Background())

	callCtx := ctx
	if timeout := c.Duration("timeout"); timeout > 0 {
		var callCancel context.CancelFunc
		callCtx, callCancel = context.WithTimeout(ctx, timeout)
		defer callCancel()
	}

	value, err := handle.Call(callCtx, c.String("method"), args...)
	if err != nil {
		if proxy.IsCrashError(err) {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitWorkerCrash)
		}
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitRejection)
	}

	if !c.Bool("quiet") {
		out, err := json.MarshalIndent(map[string]any{
			"method": c.String("method"),
			"value":  value,
		}, "", "  ")
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: render result: %v", err), exitRejection)
		}
		fmt.Println(string(out))
	}

	return nil
}

// buildOptions merges config file values with CLI flags; flags win.
func buildOptions(c *cli.Context) (proxy.Options, error) {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return proxy.Options{}, err
		}
		cfg = *loaded
	}

	opts := proxy.Options{
		EntryPoint:     cfg.Worker,
		Args:           cfg.Args,
		WorkDir:        cfg.WorkDir,
		Plugins:        cfg.Plugins,
		RequirePath:    cfg.RequirePath,
		DisposeTimeout: cfg.DisposeTimeout.Duration,
	}

	if v := c.String("worker"); v != "" {
		opts.EntryPoint = v
	}
	if v := c.StringSlice("worker-arg"); len(v) > 0 {
		opts.Args = v
	}
	if v := c.String("workdir"); v != "" {
		opts.WorkDir = v
	}
	if v := c.StringSlice("plugin"); len(v) > 0 {
		opts.Plugins = v
	}
	if v := c.String("require"); v != "" {
		opts.RequirePath = v
	}
	if v := c.Duration("dispose-timeout"); v > 0 {
		opts.DisposeTimeout = v
	}

	if opts.EntryPoint == "" {
		return proxy.Options{}, errors.New("worker binary is required (--worker or config)")
	}

	if raw := c.String("ctor-args"); raw != "" && raw != "[]" {
		var ctorArgs []any
		if err := json.Unmarshal([]byte(raw), &ctorArgs); err != nil {
			return proxy.Options{}, fmt.Errorf("invalid --ctor-args JSON: %w", err)
		}
		opts.CtorArgs = ctorArgs
	}

	return opts, nil
}
