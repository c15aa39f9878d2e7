// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Command jab checks Pipfile projects and runs their scripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "jab {[flags]|SUBCOMMAND...}",
	Short: "Check and run Pipfile projects",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	PersistentPreRunE: setup,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	addConfigFlags(argparser.PersistentFlags())
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: !cliutil.IsTerminal(),
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05.000",
	})
	return logger
}

// setup loads the configuration, and applies the configured log level, before any subcommand
// runs.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := newLogger()
	logger.SetLevel(level)

	ctx := dlog.WithLogger(cmd.Context(), dlog.WrapLogrus(logger))
	ctx = withConfig(ctx, cfg)
	cmd.SetContext(ctx)
	dlog.Debugf(ctx, "config: %+v", *cfg)
	return nil
}

func main() {
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(newLogger()))

	if err := argparser.ExecuteContext(ctx); err != nil {
		// A script's non-zero exit has already been seen on the terminal; just pass it on.
		var exitErr *cliutil.ExitError
		if !errors.As(err, &exitErr) || exitErr.Message != "" {
			fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		}
		os.Exit(cliutil.ExitCode(err))
	}
}
