// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datawire/jab/pkg/cliutil"
	"github.com/datawire/jab/pkg/pipfile"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "scripts",
		Short: "List the Pipfile's [scripts]",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd.Context()).PipfilePath()
			if err != nil {
				return err
			}
			pf, err := pipfile.Load(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			for _, name := range pf.ScriptNames() {
				fmt.Fprintf(tw, "%s\t%s\n", name, pf.Scripts[name])
			}
			return tw.Flush()
		},
	})
}
