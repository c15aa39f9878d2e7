// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/cliutil"
	"github.com/datawire/jab/pkg/harness"
	"github.com/datawire/jab/pkg/pipfile"
)

// runRequest is what the user asked `jab run` to do.
type runRequest struct {
	Script string
	Args   []string
}

type stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// manifest loads and validates the Pipfile when the harness starts.
type manifest struct {
	cfg  *Config
	file *pipfile.Pipfile
}

func newManifest(cfg *Config) *manifest {
	return &manifest{cfg: cfg}
}

func (m *manifest) OnStart(ctx context.Context) error {
	path, err := m.cfg.PipfilePath()
	if err != nil {
		return err
	}
	pf, err := pipfile.Load(path)
	if err != nil {
		return err
	}
	if err := pf.Validate(ctx); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	dlog.Debugf(ctx, "loaded %s", path)
	m.file = pf
	return nil
}

// scriptRunner runs one [scripts] entry as a subprocess.
type scriptRunner struct {
	cfg *Config
	m   *manifest
	req runRequest
	io  stdio

	started  time.Time
	exitCode int
}

func newScriptRunner(cfg *Config, m *manifest, req runRequest, streams stdio) *scriptRunner {
	return &scriptRunner{cfg: cfg, m: m, req: req, io: streams}
}

func (r *scriptRunner) Run(ctx context.Context) error {
	script, err := r.m.file.Script(r.req.Script)
	if err != nil {
		return err
	}
	argv, err := script.Argv(r.cfg.Python, r.req.Args...)
	if err != nil {
		return fmt.Errorf("script %q: %w", r.req.Script, err)
	}

	cmd := dexec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = r.io.In
	cmd.Stdout = r.io.Out
	cmd.Stderr = r.io.Err
	cmd.DisableLogging = true
	// Let the script find the project the way `pipenv run` would.
	cmd.Env = append(os.Environ(), "PIPENV_PIPFILE="+r.m.file.Path)

	r.started = time.Now()
	dlog.Debugf(ctx, "running %q: %q", r.req.Script, argv)
	err = cmd.Run()
	var exitErr *dexec.ExitError
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &exitErr):
		r.exitCode = exitErr.ExitCode()
		return nil
	default:
		return fmt.Errorf("script %q: %w", r.req.Script, err)
	}
}

func (r *scriptRunner) OnStop(ctx context.Context) error {
	if !r.started.IsZero() {
		dlog.Debugf(ctx, "script %q finished after %v with exit code %d",
			r.req.Script, time.Since(r.started).Round(time.Millisecond), r.exitCode)
	}
	return nil
}

// runScript wires up the components of `jab run` and runs them.
func runScript(ctx context.Context, cfg *Config, req runRequest, streams stdio, signals bool) error {
	h := harness.New(
		harness.WithName("jab run"),
		harness.WithSignalHandling(signals),
		harness.WithStopTimeout(cfg.StopTimeout))
	if err := h.Supply(cfg, req, streams); err != nil {
		return err
	}
	if err := h.Provide(newManifest, newScriptRunner); err != nil {
		return err
	}
	if err := h.Run(ctx); err != nil {
		return err
	}

	var runner *scriptRunner
	if err := h.Get(ctx, &runner); err != nil {
		return err
	}
	if runner.exitCode != 0 {
		return &cliutil.ExitError{Code: runner.exitCode}
	}
	return nil
}

func init() {
	cmd := &cobra.Command{
		Use:   "run [flags] SCRIPT [ARGS...]",
		Short: "Run one of the Pipfile's [scripts] with any extra arguments appended to its command line",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		Long: "Run looks up SCRIPT in the Pipfile's [scripts] table and runs it, with ARGS " +
			"appended to its command line.  A script's exit code becomes jab's exit code." +
			"\n\n" +
			"Interrupting jab interrupts the script.",
		Example: "  jab run test -- -k harness",

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return runScript(ctx, configFrom(ctx),
				runRequest{Script: args[0], Args: args[1:]},
				stdio{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()},
				true)
		},
	}
	// Everything after SCRIPT belongs to the script, flags included.
	cmd.Flags().SetInterspersed(false)
	argparser.AddCommand(cmd)
}
