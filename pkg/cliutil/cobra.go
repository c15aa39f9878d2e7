// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package cliutil holds the pieces of the jab command line that aren't specific to any one
// subcommand: argument checking, usage errors, help formatting, and exit codes.
package cliutil

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// OnlySubcommands is a cobra.PositionalArgs for commands that exist only to hold subcommands.  It
// is like cobra.NoArgs, but treats the argument as a mistyped subcommand and suggests what might
// have been meant.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return cmd.FlagErrorFunc()(cmd, err)
}

// WrapPositionalArgs makes a cobra.PositionalArgs report its errors through FlagErrorFunc, so that
// a wrong number of arguments is reported the same way as a bad flag.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// RunSubcommands is the RunE for commands that exist only to hold subcommands.  Leaving RunE unset
// would make running the bare command "succeed", which it shouldn't; this prints help to stderr
// and exits 2 instead.
func RunSubcommands(cmd *cobra.Command, args []string) error {
	cmd.SetOut(cmd.ErrOrStderr())
	cmd.HelpFunc()(cmd, args)
	os.Exit(2)
	return nil
}

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc.  It reports a usage error GNU-style and
// exits 2; it does not return if err is non-nil.  That way any error that comes back from
// (*cobra.Command).Execute is an execution error, never a usage error.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.TrimRight(err.Error(), "\n")
	if strings.Contains(msg, "\n") {
		// Set a multi-line message off from the hint below it.
		msg += "\n"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\nSee '%s --help' for more information.\n",
		cmd.CommandPath(), msg, cmd.CommandPath())
	os.Exit(2)
	return nil
}

// ExitError is an error that should make the program exit with a particular code, such as a
// script's own exit code.  Message may be empty if whatever failed has already said why.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

// ExitCode returns the code that the program should exit with for err: 0 for nil, the code of an
// *ExitError found anywhere in err's chain, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
