// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipfile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/datawire/jab/pkg/pep440"
)

// Unconstrained is the version constraint that accepts any version.
const Unconstrained = "*"

// Requirement is one entry in [packages] or [dev-packages].  In the Pipfile it is either a bare
// version-constraint string,
//
//	toposort = "*"
//
// or an inline table:
//
//	uvloop = {version = ">=0.14", markers = "sys_platform != 'win32'"}
type Requirement struct {
	Name     string   `json:"-"`
	Version  string   `json:"version,omitempty"`
	Extras   []string `json:"extras,omitempty"`
	Index    string   `json:"index,omitempty"`
	Markers  string   `json:"markers,omitempty"`
	Git      string   `json:"git,omitempty"`
	Ref      string   `json:"ref,omitempty"`
	Path     string   `json:"path,omitempty"`
	File     string   `json:"file,omitempty"`
	Editable bool     `json:"editable,omitempty"`

	// table is set if the requirement was written as an inline table.
	table bool
	// unknown lists table keys that were not understood.
	unknown []string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (req *Requirement) UnmarshalTOML(data interface{}) error {
	switch data := data.(type) {
	case string:
		req.Version = data
		return nil
	case map[string]interface{}:
		req.table = true
		for key, val := range data {
			var err error
			switch key {
			case "version":
				req.Version, err = tomlString(key, val)
			case "index":
				req.Index, err = tomlString(key, val)
			case "markers":
				req.Markers, err = tomlString(key, val)
			case "git":
				req.Git, err = tomlString(key, val)
			case "ref":
				req.Ref, err = tomlString(key, val)
			case "path":
				req.Path, err = tomlString(key, val)
			case "file":
				req.File, err = tomlString(key, val)
			case "editable":
				b, ok := val.(bool)
				if !ok {
					err = fmt.Errorf("%s: expected a boolean, got %T", key, val)
				}
				req.Editable = b
			case "extras":
				req.Extras, err = tomlStrings(key, val)
			default:
				req.unknown = append(req.unknown, key)
			}
			if err != nil {
				return err
			}
		}
		sort.Strings(req.unknown)
		return nil
	default:
		return fmt.Errorf("expected a version string or an inline table, got %T", data)
	}
}

func tomlString(key string, val interface{}) (string, error) {
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", key, val)
	}
	return str, nil
}

func tomlStrings(key string, val interface{}) ([]string, error) {
	list, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected an array of strings, got %T", key, val)
	}
	ret := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected an array of strings, got an element of type %T", key, item)
		}
		ret = append(ret, str)
	}
	return ret, nil
}

// MarshalJSON writes the requirement back in the shorter of its two forms.
func (req Requirement) MarshalJSON() ([]byte, error) {
	if !req.table {
		return json.Marshal(req.Version)
	}
	type plain Requirement
	return json.Marshal(plain(req))
}

// IsVersioned reports whether the requirement is resolved from a package index by version, as
// opposed to being fetched from version control or a local path.
func (req *Requirement) IsVersioned() bool {
	return req.Git == "" && req.Path == "" && req.File == ""
}

// Specifier parses the version constraint.  An unconstrained requirement returns a nil
// Specifier, which matches every version.  Only a requirement that isn't versioned (see
// IsVersioned) may omit the constraint.
func (req *Requirement) Specifier() (pep440.Specifier, error) {
	switch {
	case req.Version == Unconstrained:
		return nil, nil
	case req.Version == "" && !req.IsVersioned():
		return nil, nil
	case req.Version == "" && req.table:
		return nil, fmt.Errorf("missing version constraint; use version = %q for any version", Unconstrained)
	case req.Version == "":
		return nil, fmt.Errorf("empty version constraint; use %q for any version", Unconstrained)
	}
	spec, err := pep440.ParseSpecifier(req.Version)
	if err != nil {
		return nil, err
	}
	if len(spec) == 0 {
		return nil, fmt.Errorf("version constraint %q has no clauses", req.Version)
	}
	return spec, nil
}
