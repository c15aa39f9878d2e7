// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep503

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/pep440"
)

type FileLink struct {
	Link
}

// Yanked reports whether the index has marked the file as yanked (PEP 592).  Yanked files must
// not be selected by a resolver unless pinned with "==".
func (l FileLink) Yanked() bool {
	_, yanked := l.DataAttrs["data-yanked"]
	return yanked
}

// RequiresPython returns the file's data-requires-python specifier (PEP 503 as amended by PEP
// 345), or nil if the file doesn't declare one.
func (l FileLink) RequiresPython() (pep440.Specifier, error) {
	str := l.DataAttrs["data-requires-python"]
	if str == "" {
		return nil, nil
	}
	return pep440.ParseSpecifier(str)
}

//nolint:gochecknoglobals // Would be 'const'.
var sdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".zip"}

// Version extracts the release version from the file's name.  project is the name of the project
// whose page the link was found on; it is needed to split sdist filenames, which (unlike wheel
// filenames) may contain dashes in the project name.
func (l FileLink) Version(project string) (*pep440.Version, error) {
	filename := l.Text
	switch {
	case strings.HasSuffix(filename, ".whl"):
		// {distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl
		parts := strings.Split(strings.TrimSuffix(filename, ".whl"), "-")
		if len(parts) != 5 && len(parts) != 6 {
			return nil, fmt.Errorf("invalid wheel filename: %q", filename)
		}
		return pep440.ParseVersion(parts[1])
	case strings.HasSuffix(filename, ".egg"):
		// {name}-{version}-py{X.Y}.egg
		parts := strings.Split(strings.TrimSuffix(filename, ".egg"), "-")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid egg filename: %q", filename)
		}
		return pep440.ParseVersion(parts[1])
	}
	for _, ext := range sdistExtensions {
		if !strings.HasSuffix(filename, ext) {
			continue
		}
		stem := strings.TrimSuffix(filename, ext)
		want := Normalize(project)
		for i := strings.IndexByte(stem, '-'); i >= 0; {
			if Normalize(stem[:i]) == want {
				return pep440.ParseVersion(stem[i+1:])
			}
			next := strings.IndexByte(stem[i+1:], '-')
			if next < 0 {
				break
			}
			i += next + 1
		}
		return nil, fmt.Errorf("sdist filename %q does not start with project name %q", filename, project)
	}
	return nil, fmt.Errorf("unrecognized distribution filename: %q", filename)
}

// Versions returns the distinct, non-yanked versions that the index has files for, oldest
// first.  Files whose names can't be parsed are logged and skipped; real indexes contain plenty
// of legacy junk.
//
// If python is non-nil, files whose data-requires-python excludes that Python version are
// skipped too.
func (c Client) Versions(ctx context.Context, project string, python *pep440.Version) ([]pep440.Version, error) {
	links, err := c.ListPackageFiles(ctx, project)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(links))
	var ret []pep440.Version
	for _, link := range links {
		if link.Yanked() {
			continue
		}
		if python != nil {
			reqPy, err := link.RequiresPython()
			if err != nil {
				dlog.Debugf(ctx, "pep503: %s: %s: bad data-requires-python: %v", project, link.Text, err)
			} else if reqPy != nil && !reqPy.Match(*python) {
				continue
			}
		}
		ver, err := link.Version(project)
		if err != nil {
			dlog.Debugf(ctx, "pep503: %s: skipping file: %v", project, err)
			continue
		}
		key := ver.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ret = append(ret, *ver)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Cmp(ret[j]) < 0
	})
	return ret, nil
}
