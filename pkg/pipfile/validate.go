// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipfile

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/pep440"
	"github.com/datawire/jab/pkg/pep503"
)

// FieldError is a problem with one field of a Pipfile.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// PEP 508 names: "must start and end with a letter or digit" and otherwise contain only letters,
// digits, "-", "_", and ".".
//
//nolint:gochecknoglobals // Would be 'const'.
var reName = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9._-]*[a-z0-9])$`)

type validator struct {
	ctx  context.Context
	pf   *Pipfile
	errs derror.MultiError
}

func (v *validator) errorf(field, format string, args ...interface{}) {
	v.errs = append(v.errs, &FieldError{Field: field, Err: fmt.Errorf(format, args...)})
}

func (v *validator) wrap(field string, err error) {
	if err != nil {
		v.errs = append(v.errs, &FieldError{Field: field, Err: err})
	}
}

// Validate checks the Pipfile for problems.  All problems are reported at once; the returned error
// is a derror.MultiError of *FieldError.  Questionable-but-legal constructs are logged as
// warnings.
func (pf *Pipfile) Validate(ctx context.Context) error {
	v := &validator{ctx: ctx, pf: pf}
	for _, key := range pf.undecoded {
		dlog.Warnf(ctx, "pipfile: unknown key %q", key)
	}
	v.sources()
	v.packages("packages", pf.Packages)
	v.packages("dev-packages", pf.DevPackages)
	v.crossSection()
	v.requires()
	v.scripts()
	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func (v *validator) sources() {
	seen := make(map[string]int)
	for i, src := range v.pf.Sources {
		field := fmt.Sprintf("source[%d]", i)
		if src.Name == "" {
			v.errorf(field+".name", "empty source name")
		} else if prev, dup := seen[src.Name]; dup {
			v.errorf(field+".name", "duplicate source name %q (also source[%d])", src.Name, prev)
		} else {
			seen[src.Name] = i
		}
		u, err := url.Parse(src.URL)
		switch {
		case err != nil:
			v.wrap(field+".url", err)
		case u.Scheme != "http" && u.Scheme != "https":
			v.errorf(field+".url", "index URL %q must be http or https", src.URL)
		case u.Host == "":
			v.errorf(field+".url", "index URL %q has no host", src.URL)
		}
		for _, key := range src.unknown {
			dlog.Warnf(v.ctx, "pipfile: %s: unknown key %q", field, key)
		}
		if !src.VerifySSL {
			dlog.Warnf(v.ctx, "pipfile: %s: SSL verification is disabled for %q", field, src.Name)
		}
	}
}

func (v *validator) packages(section string, pkgs Packages) {
	normalized := make(map[string]string, len(pkgs))
	for _, name := range pkgs.Names() {
		req := pkgs[name]
		field := section + "." + name
		if !reName.MatchString(name) {
			v.errorf(field, "invalid package name %q", name)
		} else {
			norm := pep503.Normalize(name)
			if prev, dup := normalized[norm]; dup {
				v.errorf(field, "duplicate package: %q and %q are the same project", prev, name)
			}
			normalized[norm] = name
		}
		for _, key := range req.unknown {
			dlog.Warnf(v.ctx, "pipfile: %s: unknown key %q", field, key)
		}
		if req.Git != "" && (req.Path != "" || req.File != "") {
			v.errorf(field, "git, path, and file are mutually exclusive")
		} else if req.Path != "" && req.File != "" {
			v.errorf(field, "path and file are mutually exclusive")
		}
		if req.Ref != "" && req.Git == "" {
			v.errorf(field+".ref", "ref requires git")
		}
		if req.IsVersioned() || req.Version != "" {
			if _, err := req.Specifier(); err != nil {
				v.wrap(field+".version", err)
			}
		}
		if req.Index != "" {
			if _, ok := v.pf.Source(req.Index); !ok {
				v.errorf(field+".index", "index %q is not a declared source", req.Index)
			}
		}
		for i, extra := range req.Extras {
			if !reName.MatchString(extra) {
				v.errorf(fmt.Sprintf("%s.extras[%d]", field, i), "invalid extra name %q", extra)
			}
		}
	}
}

func (v *validator) crossSection() {
	runtime := make(map[string]*Requirement, len(v.pf.Packages))
	for _, req := range v.pf.Packages {
		runtime[pep503.Normalize(req.Name)] = req
	}
	for _, name := range v.pf.DevPackages.Names() {
		dev := v.pf.DevPackages[name]
		if req, ok := runtime[pep503.Normalize(name)]; ok && req.Version != dev.Version {
			dlog.Warnf(v.ctx, "pipfile: %q is in both [packages] (%q) and [dev-packages] (%q)",
				name, req.Version, dev.Version)
		}
	}
}

func (v *validator) requires() {
	if str := v.pf.Requires.PythonVersion; str != "" {
		ver, err := pep440.ParseVersion(str)
		switch {
		case err != nil:
			v.wrap("requires.python_version", err)
		case !ver.IsFinal() || ver.Epoch != 0 || len(ver.Release) != 2:
			v.errorf("requires.python_version",
				"%q is not of the form MAJOR.MINOR; use python_full_version for a full version", str)
		}
	}
	if str := v.pf.Requires.PythonFullVersion; str != "" {
		ver, err := pep440.ParseVersion(str)
		switch {
		case err != nil:
			v.wrap("requires.python_full_version", err)
		case v.pf.Requires.PythonVersion != "":
			if short, err := pep440.ParseVersion(v.pf.Requires.PythonVersion); err == nil &&
				(short.Major() != ver.Major() || short.Minor() != ver.Minor()) {
				v.errorf("requires.python_full_version", "%q disagrees with python_version %q",
					str, v.pf.Requires.PythonVersion)
			}
		}
	}
}

func (v *validator) scripts() {
	for _, name := range v.pf.ScriptNames() {
		script := v.pf.Scripts[name]
		field := "scripts." + name
		if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			v.errorf(field, "invalid script name %q", name)
		}
		for _, key := range script.unknown {
			dlog.Warnf(v.ctx, "pipfile: %s: unknown key %q", field, key)
		}
		v.wrap(field, script.check())
	}
}
