// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipfile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Script is a named command alias from [scripts].  It is either a command line,
//
//	test-cov = "pytest --cov=jab"
//
// or a table naming a Python callable:
//
//	serve = {call = "jab.cli:main('--port=8080')"}
type Script struct {
	Cmd  string `json:"cmd,omitempty"`
	Call string `json:"call,omitempty"`

	table   bool
	unknown []string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (s *Script) UnmarshalTOML(data interface{}) error {
	switch data := data.(type) {
	case string:
		s.Cmd = data
		return nil
	case map[string]interface{}:
		s.table = true
		for key, val := range data {
			var err error
			switch key {
			case "cmd":
				s.Cmd, err = tomlString(key, val)
			case "call":
				s.Call, err = tomlString(key, val)
			default:
				s.unknown = append(s.unknown, key)
			}
			if err != nil {
				return err
			}
		}
		sort.Strings(s.unknown)
		return nil
	default:
		return fmt.Errorf("expected a command string or a table, got %T", data)
	}
}

// MarshalJSON writes the script back in the shorter of its two forms.
func (s Script) MarshalJSON() ([]byte, error) {
	if !s.table {
		return json.Marshal(s.Cmd)
	}
	type plain Script
	return json.Marshal(plain(s))
}

//nolint:gochecknoglobals // Would be 'const'.
var reCall = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*):([A-Za-z_][A-Za-z0-9_]*)(\(.*\))?$`)

// check returns the reason the script can't be run, or nil.
func (s Script) check() error {
	switch {
	case s.Cmd != "" && s.Call != "":
		return fmt.Errorf("cmd and call are mutually exclusive")
	case s.Call != "":
		if !reCall.MatchString(s.Call) {
			return fmt.Errorf("call %q is not of the form \"package.module:function\" or \"package.module:function(args)\"", s.Call)
		}
		return nil
	case strings.TrimSpace(s.Cmd) == "":
		return fmt.Errorf("empty command")
	}
	words, err := shlex.Split(s.Cmd)
	if err != nil {
		return fmt.Errorf("command %q: %w", s.Cmd, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("command %q has no words", s.Cmd)
	}
	return nil
}

// Argv returns the argument vector to execute the script, with extraArgs appended.  python is the
// interpreter used to run "call" scripts.
func (s Script) Argv(python string, extraArgs ...string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.Call != "" {
		match := reCall.FindStringSubmatch(s.Call)
		module, function, args := match[1], match[2], match[3]
		if args == "" {
			args = "()"
		}
		code := fmt.Sprintf("import sys, importlib; sys.exit(importlib.import_module(%q).%s%s)",
			module, function, args)
		return append([]string{python, "-c", code}, extraArgs...), nil
	}
	words, err := shlex.Split(s.Cmd)
	if err != nil {
		return nil, err
	}
	return append(words, extraArgs...), nil
}

func (s Script) String() string {
	if s.Call != "" {
		return "call " + s.Call
	}
	return s.Cmd
}
