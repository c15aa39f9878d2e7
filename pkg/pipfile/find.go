// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the name that Find looks for.
const FileName = "Pipfile"

// DefaultMaxDepth is how many parent directories Find searches by default; it matches pipenv's
// PIPENV_MAX_DEPTH default.
const DefaultMaxDepth = 3

var ErrNotFound = errors.New("no Pipfile found")

// Find looks for a Pipfile in dir, then in up to maxDepth of its parent directories, and returns
// the path of the first one found.
func Find(dir string, maxDepth int) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	start := dir
	for depth := 0; depth <= maxDepth; depth++ {
		candidate := filepath.Join(dir, FileName)
		fi, err := os.Stat(candidate)
		switch {
		case err == nil && fi.Mode().IsRegular():
			return candidate, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%w in %q or its %d parent directories", ErrNotFound, start, maxDepth)
}
