// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// defaultWidth is assumed for a terminal whose size can't be read.
const defaultWidth = 80

// GetTerminalWidth returns the width that help text should be wrapped to, or 0 for "don't wrap".
//
// $COLUMNS wins if it is set.  Otherwise it is the width of stdout if stdout is a terminal; output
// going to a pipe or a file isn't wrapped.
func GetTerminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		return cols
	}
	fd := int(os.Stdout.Fd())
	if cols, _, err := term.GetSize(fd); err == nil {
		return cols
	}
	if term.IsTerminal(fd) {
		return defaultWidth
	}
	return 0
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
