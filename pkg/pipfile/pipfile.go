// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pipfile reads and validates Pipfiles, the TOML manifests that declare a Python
// project's package indexes, runtime and development dependencies, required interpreter, and
// script aliases.
//
// https://github.com/pypa/pipfile
package pipfile

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type Pipfile struct {
	Sources     []Source          `toml:"source" json:"source,omitempty"`
	Packages    Packages          `toml:"packages" json:"packages,omitempty"`
	DevPackages Packages          `toml:"dev-packages" json:"dev-packages,omitempty"`
	Requires    Requires          `toml:"requires" json:"requires,omitempty"`
	Pipenv      Settings          `toml:"pipenv" json:"pipenv,omitempty"`
	Scripts     map[string]Script `toml:"scripts" json:"scripts,omitempty"`

	// Path is the file the Pipfile was loaded from, if any.
	Path string `toml:"-" json:"-"`

	undecoded []string
}

// Source is a package index.  VerifySSL is true unless the Pipfile says otherwise.
type Source struct {
	Name      string `toml:"name" json:"name"`
	URL       string `toml:"url" json:"url"`
	VerifySSL bool   `toml:"verify_ssl" json:"verify_ssl"`

	unknown []string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (src *Source) UnmarshalTOML(data interface{}) error {
	tbl, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("expected a table, got %T", data)
	}
	src.VerifySSL = true
	for key, val := range tbl {
		var err error
		switch key {
		case "name":
			src.Name, err = tomlString(key, val)
		case "url":
			src.URL, err = tomlString(key, val)
		case "verify_ssl":
			b, ok := val.(bool)
			if !ok {
				err = fmt.Errorf("%s: expected a boolean, got %T", key, val)
			}
			src.VerifySSL = b
		default:
			src.unknown = append(src.unknown, key)
		}
		if err != nil {
			return err
		}
	}
	sort.Strings(src.unknown)
	return nil
}

// DefaultSource is used for requirements when a Pipfile declares no sources at all.
//
//nolint:gochecknoglobals // Would be 'const'.
var DefaultSource = Source{
	Name:      "pypi",
	URL:       "https://pypi.org/simple",
	VerifySSL: true,
}

type Requires struct {
	PythonVersion     string `toml:"python_version" json:"python_version,omitempty"`
	PythonFullVersion string `toml:"python_full_version" json:"python_full_version,omitempty"`
}

type Settings struct {
	AllowPrereleases bool `toml:"allow_prereleases" json:"allow_prereleases,omitempty"`
}

// Packages maps a requirement's name (as spelled in the Pipfile) to the requirement.
type Packages map[string]*Requirement

// Names returns the package names in sorted order.
func (pkgs Packages) Names() []string {
	names := make([]string, 0, len(pkgs))
	for name := range pkgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the Pipfile at path.  It does not validate it; call Validate for that.
func Load(path string) (*Pipfile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	pf, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pf.Path = path
	return pf, nil
}

// Parse decodes a Pipfile.
func Parse(r io.Reader) (*Pipfile, error) {
	var pf Pipfile
	md, err := toml.NewDecoder(r).Decode(&pf)
	if err != nil {
		return nil, err
	}
	for _, key := range md.Undecoded() {
		// Requirement and Script tables are decoded by UnmarshalTOML, which checks its own
		// keys.
		switch key[0] {
		case "packages", "dev-packages", "scripts":
			if len(key) > 2 {
				continue
			}
		}
		pf.undecoded = append(pf.undecoded, key.String())
	}
	for name, req := range pf.Packages {
		req.Name = name
	}
	for name, req := range pf.DevPackages {
		req.Name = name
	}
	return &pf, nil
}

// EffectiveSources returns the declared sources, or DefaultSource if there are none.
func (pf *Pipfile) EffectiveSources() []Source {
	if len(pf.Sources) == 0 {
		return []Source{DefaultSource}
	}
	return pf.Sources
}

// Source looks up a declared source by name.
func (pf *Pipfile) Source(name string) (Source, bool) {
	for _, src := range pf.EffectiveSources() {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// SourceFor returns the source that a requirement should be resolved from: the one it names
// with "index", or else the first source.
func (pf *Pipfile) SourceFor(req *Requirement) (Source, error) {
	if req.Index == "" {
		return pf.EffectiveSources()[0], nil
	}
	src, ok := pf.Source(req.Index)
	if !ok {
		return Source{}, fmt.Errorf("index %q is not a declared source", req.Index)
	}
	return src, nil
}

// Section returns the runtime packages, or the development packages if dev is set.
func (pf *Pipfile) Section(dev bool) Packages {
	if dev {
		return pf.DevPackages
	}
	return pf.Packages
}

// ScriptNames returns the names of the script aliases in sorted order.
func (pf *Pipfile) ScriptNames() []string {
	names := make([]string, 0, len(pf.Scripts))
	for name := range pf.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Script looks up a script alias.
func (pf *Pipfile) Script(name string) (Script, error) {
	script, ok := pf.Scripts[name]
	if !ok {
		return Script{}, &UnknownScriptError{Name: name, Known: pf.ScriptNames()}
	}
	return script, nil
}

type UnknownScriptError struct {
	Name  string
	Known []string
}

func (e *UnknownScriptError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("no script named %q: the Pipfile has no [scripts]", e.Name)
	}
	return fmt.Sprintf("no script named %q; known scripts: %s", e.Name, strings.Join(e.Known, ", "))
}
