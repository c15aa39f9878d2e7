// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pyinspect asks a Python interpreter about itself, so that it can be checked against a
// Pipfile's [requires] section.
package pyinspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/datawire/jab/pkg/pep440"
	"github.com/datawire/jab/pkg/pipfile"
)

// VersionInfo mirrors Python's sys.version_info.
type VersionInfo struct {
	Major        int    `json:"major"`
	Minor        int    `json:"minor"`
	Micro        int    `json:"micro"`
	ReleaseLevel string `json:"releaselevel"`
	Serial       int    `json:"serial"`
}

//nolint:gochecknoglobals // Would be 'const'.
var releaseLevels = map[string]string{
	"alpha":     "a",
	"beta":      "b",
	"candidate": "rc",
	"final":     "",
}

// Version returns the PEP 440 spelling of the version; 3.11.0 "candidate" 1 is "3.11.0rc1".
func (vi VersionInfo) Version() (*pep440.Version, error) {
	pre, ok := releaseLevels[vi.ReleaseLevel]
	if !ok {
		return nil, fmt.Errorf("unknown release level %q", vi.ReleaseLevel)
	}
	str := fmt.Sprintf("%d.%d.%d", vi.Major, vi.Minor, vi.Micro)
	if pre != "" {
		str += fmt.Sprintf("%s%d", pre, vi.Serial)
	}
	return pep440.ParseVersion(str)
}

// Interpreter is what a Python interpreter reports about itself.
type Interpreter struct {
	Command        []string    `json:"command"`
	Executable     string      `json:"executable"`
	Implementation string      `json:"implementation"`
	VersionInfo    VersionInfo `json:"version_info"`
}

const inspectScript = `
import json
import platform
import sys

version_info_slots = ['major', 'minor', 'micro', 'releaselevel', 'serial']

json.dump({
  "executable": sys.executable,
  "implementation": platform.python_implementation(),
  "version_info": {slot: getattr(sys.version_info, slot) for slot in version_info_slots},
}, sys.stdout)
`

// Inspect runs the interpreter named by cmdline and asks it about itself.
func Inspect(ctx context.Context, cmdline ...string) (*Interpreter, error) {
	if len(cmdline) == 0 {
		return nil, errors.New("pyinspect: no interpreter given")
	}
	cmd := dexec.CommandContext(ctx, cmdline[0], append(cmdline[1:], "-c", inspectScript)...)
	cmd.DisableLogging = true
	bs, err := cmd.Output()
	if err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w:\n > %s", err,
				strings.Join(strings.Split(strings.TrimSpace(string(exitErr.Stderr)), "\n"), "\n > "))
		}
		return nil, fmt.Errorf("running Python: %w", err)
	}
	data := &Interpreter{Command: cmdline}
	if err := json.Unmarshal(bs, data); err != nil {
		return nil, fmt.Errorf("running Python: %w", err)
	}
	return data, nil
}

// MismatchError is returned by Interpreter.Satisfies.
type MismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("requires.%s is %q but the interpreter is Python %s", e.Field, e.Want, e.Got)
}

// Satisfies checks the interpreter against the Pipfile's [requires] section.  python_full_version
// must match exactly; python_version must match the major and minor versions.  Unparsable
// requirements are left to pipfile.Validate.
func (in *Interpreter) Satisfies(req pipfile.Requires) error {
	have, err := in.VersionInfo.Version()
	if err != nil {
		return err
	}
	if str := req.PythonFullVersion; str != "" {
		if want, err := pep440.ParseVersion(str); err == nil && want.Cmp(*have) != 0 {
			return &MismatchError{Field: "python_full_version", Want: str, Got: have.String()}
		}
	}
	if str := req.PythonVersion; str != "" {
		if want, err := pep440.ParseVersion(str); err == nil &&
			(want.Major() != have.Major() || want.Minor() != have.Minor()) {
			return &MismatchError{Field: "python_version", Want: str, Got: have.String()}
		}
	}
	return nil
}
