// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"github.com/spf13/cobra"
)

func init() {
	cobra.AddTemplateFunc("getTerminalWidth", GetTerminalWidth)
	cobra.AddTemplateFunc("wrap", Wrap)
	cobra.AddTemplateFunc("wrapIndent", WrapIndent)
	cobra.AddTemplateFunc("add", func(args ...int) int {
		sum := 0
		for _, arg := range args {
			sum += arg
		}
		return sum
	})
}

// HelpTemplate is for (*cobra.Command).SetHelpTemplate.  Compared to cobra's default it puts the
// short description right under the usage line, and word-wraps descriptions to the terminal.
const HelpTemplate = `Usage: {{ .UseLine }}

{{- /* Short description --------------------------------------------------- */}}
{{- if .Short }}
{{ .Short }}
{{- end }}

{{- /* Long description ---------------------------------------------------- */}}
{{- if .Long }}

{{ .Long | wrap getTerminalWidth | trimTrailingWhitespaces }}
{{- end }}

{{- /* Aliases ------------------------------------------------------------- */}}
{{- if .Aliases }}

Aliases:
  {{ .NameAndAliases }}
{{- end }}

{{- /* Examples ------------------------------------------------------------ */}}
{{- if .HasExample }}

Examples:
{{ .Example }}
{{- end }}

{{- /* Subcommands --------------------------------------------------------- */}}
{{- if .HasAvailableSubCommands }}

Available Commands:
{{- range .Commands }}
  {{- if (or .IsAvailableCommand (eq .Name "help")) }}
    {{- "\n" }}  {{ rpad .Name .NamePadding }}   {{ .Short | wrapIndent (add .NamePadding 5) getTerminalWidth }}
  {{- end }}
{{- end }}
{{- end }}

{{- /* Flags --------------------------------------------------------------- */}}
{{- if .HasAvailableLocalFlags }}

Flags:
{{ getTerminalWidth | .LocalFlags.FlagUsagesWrapped | trimTrailingWhitespaces }}
{{- end }}

{{- if .HasAvailableInheritedFlags }}

Global Flags:
{{ getTerminalWidth | .InheritedFlags.FlagUsagesWrapped | trimTrailingWhitespaces }}
{{- end }}

{{- /* Help topics --------------------------------------------------------- */}}
{{- if .HasHelpSubCommands }}

Additional help topics:
{{- range .Commands }}
  {{- if .IsAdditionalHelpTopicCommand }}
    {{- "\n" }}  {{ rpad .CommandPath .CommandPathPadding }}   {{ .Short | wrapIndent (add .CommandPathPadding 5) getTerminalWidth }}
  {{- end }}
{{- end }}
{{- end }}

{{- if .HasAvailableSubCommands }}

Use "{{ .CommandPath }} [command] --help" for more information about a command.
{{- end }}
`
