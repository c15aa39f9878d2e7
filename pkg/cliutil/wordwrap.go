// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"strings"
)

// slop is how far short of the requested width most lines are wrapped, so that a short word
// doesn't end up on a line by itself.  It matches what pflag uses for flag usage text, so that
// command and flag descriptions wrap the same way.
const slop = 5

// Wrap the string `s` to a maximum width `w`.  Pass `w` == 0 to do no wrapping.
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func Wrap(w int, s string) string {
	return wrap(0, w, s)
}

// Wrap the string `s` to a maximum width `w` with leading indent `i`.  The first line is not
// indented (this is assumed to be done by caller).  Pass `w` == 0 to do no wrapping
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func WrapIndent(i, w int, s string) string {
	return wrap(i, w, s)
}

// splitLine splits off the first line of s, breaking at the last whitespace before column n.  If
// all of s fits within n+slop columns it is not split at all.
func splitLine(n int, s string) (first, rest string) {
	if n+slop > len(s) {
		return s, ""
	}
	sp := strings.LastIndexAny(s[:n], " \t\n")
	if sp <= 0 {
		return s, ""
	}
	if nl := strings.LastIndex(s[:n], "\n"); nl > 0 && nl < sp {
		return s[:nl], s[nl+1:]
	}
	return s[:sp], s[sp+1:]
}

func wrap(i, w int, s string) string {
	if w == 0 {
		return strings.ReplaceAll(s, "\n", "\n"+strings.Repeat(" ", i))
	}

	var ret strings.Builder
	n := w - i
	if n < 24 {
		// Too little room beside the indent; start on a fresh line with a smaller indent.
		i = 16
		n = w - i
		ret.WriteString("\n" + strings.Repeat(" ", i))
	}
	indent := "\n" + strings.Repeat(" ", i)
	if n < 24 {
		return ret.String() + strings.ReplaceAll(s, "\n", indent)
	}
	n -= slop

	line, s := splitLine(n, s)
	ret.WriteString(strings.ReplaceAll(line, "\n", indent))
	for s != "" {
		line, s = splitLine(n, s)
		ret.WriteString(indent + strings.ReplaceAll(line, "\n", indent))
	}
	return ret.String()
}
