// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

//go:build aux

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/datawire/jab/pkg/cliutil"
)

// Commands for generating documentation and shell completion; built only with `-tags aux`, for
// packaging.

// docCommand builds a hidden command that regenerates documentation in to an empty directory.
func docCommand(use, short string, gen func(root *cobra.Command, dir string) error) *cobra.Command {
	return &cobra.Command{
		Hidden: true,
		Use:    use + " OUT_DIRECTORY",
		Short:  short,
		Args:   cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		// Generating docs needs neither config nor a Pipfile.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o777); err != nil {
				return err
			}
			root := cmd.Root()
			root.DisableAutoGenTag = true
			return gen(root, dir)
		},
	}
}

func init() {
	argparser.CompletionOptions.DisableDefaultCmd = false
	argparser.CompletionOptions.HiddenDefaultCmd = true

	argparser.AddCommand(
		docCommand("man", "Generate man pages", func(root *cobra.Command, dir string) error {
			return doc.GenManTree(root, &doc.GenManHeader{
				Source: "Ambassador Labs",
				Manual: root.Name(),
			}, dir)
		}),
		docCommand("mddoc", "Generate markdown documentation", doc.GenMarkdownTree),
	)
}
