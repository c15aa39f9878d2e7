// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"sigs.k8s.io/yaml"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/cliutil"
	"github.com/datawire/jab/pkg/indexcheck"
	"github.com/datawire/jab/pkg/pipfile"
	"github.com/datawire/jab/pkg/pyinspect"
)

type checkReport struct {
	Pipfile  string              `json:"pipfile"`
	Valid    bool                `json:"valid"`
	Problems []string            `json:"problems,omitempty"`
	Packages int                 `json:"packages"`
	Dev      int                 `json:"devPackages"`
	Scripts  []string            `json:"scripts,omitempty"`
	Results  []indexcheck.Result `json:"results,omitempty"`

	Interpreter *pyinspect.Interpreter `json:"interpreter,omitempty"`
}

func (r *checkReport) failures() int {
	n := len(r.Problems)
	for _, result := range r.Results {
		if result.Failed() {
			n++
		}
	}
	return n
}

func init() {
	var flags struct {
		Dev         bool
		Online      bool
		Interpreter bool
		Output      string
	}
	cmd := &cobra.Command{
		Use:   "check [flags]",
		Short: "Check the Pipfile for problems",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		Long: "Check validates the Pipfile: its sources, its requirements and their " +
			"version specifiers, its Python version, and its scripts.  With --online " +
			"it also asks each package index which version of each requirement would " +
			"be selected." +
			"\n\n" +
			"The exit code is 0 if there were no problems, and 1 otherwise.",

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch flags.Output {
			case "text", "yaml", "json":
			default:
				return cliutil.FlagErrorFunc(cmd, fmt.Errorf("invalid --output %q", flags.Output))
			}

			cfg := configFrom(ctx)
			path, err := cfg.PipfilePath()
			if err != nil {
				return err
			}
			pf, err := pipfile.Load(path)
			if err != nil {
				return err
			}

			report, err := check(ctx, cfg, pf, flags.Dev, flags.Online)
			if err != nil {
				return err
			}
			if flags.Interpreter {
				checkInterpreter(ctx, cfg, pf, report)
			}
			if err := writeReport(cmd.OutOrStdout(), flags.Output, report); err != nil {
				return err
			}
			if n := report.failures(); n > 0 {
				return &cliutil.ExitError{Code: 1, Message: fmt.Sprintf("%d problems found", n)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.Dev, "dev", false, "Also check [dev-packages]")
	cmd.Flags().BoolVar(&flags.Online, "online", false, "Query the package indexes")
	cmd.Flags().BoolVar(&flags.Interpreter, "interpreter", false, "Check the Python interpreter against [requires]")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "text", "Write the results as `FORMAT`: "+
		`"text", "yaml", or "json"`)
	argparser.AddCommand(cmd)
}

func check(ctx context.Context, cfg *Config, pf *pipfile.Pipfile, dev, online bool) (*checkReport, error) {
	report := &checkReport{
		Pipfile:  pf.Path,
		Packages: len(pf.Packages),
		Dev:      len(pf.DevPackages),
		Scripts:  pf.ScriptNames(),
	}
	if err := pf.Validate(ctx); err != nil {
		var errs derror.MultiError
		if !errors.As(err, &errs) {
			errs = derror.MultiError{err}
		}
		for _, err := range errs {
			report.Problems = append(report.Problems, err.Error())
		}
	}
	report.Valid = len(report.Problems) == 0
	if !online {
		return report, nil
	}
	if !report.Valid {
		dlog.Warnf(ctx, "not querying package indexes: the Pipfile has problems")
		return report, nil
	}

	checker := &indexcheck.Checker{
		UserAgent:   cfg.Index.UserAgent,
		Concurrency: cfg.Index.Concurrency,
		RateLimit:   rate.Limit(cfg.Index.RateLimit),
		Timeout:     cfg.Index.Timeout,
	}
	results, err := checker.Check(ctx, pf, dev)
	if err != nil {
		return nil, err
	}
	report.Results = results
	return report, nil
}

// checkInterpreter asks cfg.Python about itself, and records any mismatch with the Pipfile as a
// problem.
func checkInterpreter(ctx context.Context, cfg *Config, pf *pipfile.Pipfile, report *checkReport) {
	interp, err := pyinspect.Inspect(ctx, cfg.Python)
	if err == nil {
		report.Interpreter = interp
		dlog.Debugf(ctx, "interpreter %s is %s %d.%d.%d", interp.Executable, interp.Implementation,
			interp.VersionInfo.Major, interp.VersionInfo.Minor, interp.VersionInfo.Micro)
		err = interp.Satisfies(pf.Requires)
	}
	if err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("interpreter %s: %v", cfg.Python, err))
		report.Valid = false
	}
}

func writeReport(w io.Writer, format string, report *checkReport) error {
	switch format {
	case "json":
		bs, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", bs)
		return err
	case "yaml":
		bs, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		_, err = w.Write(bs)
		return err
	}

	if report.Valid {
		fmt.Fprintf(w, "%s: ok (%d packages, %d dev-packages, %d scripts)\n",
			report.Pipfile, report.Packages, report.Dev, len(report.Scripts))
	} else {
		fmt.Fprintf(w, "%s: %d problems:\n", report.Pipfile, len(report.Problems))
		for _, problem := range report.Problems {
			fmt.Fprintf(w, "  %s\n", problem)
		}
	}
	if in := report.Interpreter; in != nil {
		fmt.Fprintf(w, "interpreter: %s (%s %d.%d.%d)\n", in.Executable, in.Implementation,
			in.VersionInfo.Major, in.VersionInfo.Minor, in.VersionInfo.Micro)
	}
	if len(report.Results) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tPACKAGE\tCONSTRAINT\tSELECTED\tLATEST\tSOURCE")
	for _, result := range report.Results {
		selected := result.Selected
		switch {
		case result.Skipped != "":
			selected = "(" + result.Skipped + ")"
		case result.Failed():
			selected = "ERROR: " + result.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			result.Section, result.Name, result.Constraint, selected, result.Latest, result.Source)
	}
	return tw.Flush()
}
