// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// reVersion is the permissive version grammar from PEP 440 Appendix B, which accepts every
// alternate spelling that normalizes to a valid version.
//
//nolint:gochecknoglobals // Would be 'const'.
var reVersion = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_.]?(?P<pre_l>alpha|beta|preview|pre|rc|a|b|c)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?:-(?P<post_n1>[0-9]+)|[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?)?` +
	`(?:[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?` +
	`\s*$`)

//nolint:gochecknoglobals // Would be 'const'.
var preReleaseSpellings = map[string]string{
	"a":       "a",
	"alpha":   "a",
	"b":       "b",
	"beta":    "b",
	"c":       "rc",
	"rc":      "rc",
	"pre":     "rc",
	"preview": "rc",
}

// ParseVersion parses and normalizes a version string.
func ParseVersion(str string) (*Version, error) {
	ver, err := parseVersion(str)
	if err != nil {
		return nil, fmt.Errorf("pep440.ParseVersion: %w", err)
	}
	return ver, nil
}

// MustParseVersion is like ParseVersion, but panics on error.  It is intended for initializing
// package-level variables and tests.
func MustParseVersion(str string) Version {
	ver, err := ParseVersion(str)
	if err != nil {
		panic(err)
	}
	return *ver
}

func parseVersion(str string) (*Version, error) {
	match := reVersion.FindStringSubmatch(str)
	if match == nil {
		return nil, fmt.Errorf("invalid version: %q", str)
	}
	group := func(name string) string {
		return match[reVersion.SubexpIndex(name)]
	}
	atoi := func(part, numStr string) (int, error) {
		if numStr == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", part, err)
		}
		return n, nil
	}

	var ver Version
	var err error
	if ver.Epoch, err = atoi("epoch", group("epoch")); err != nil {
		return nil, err
	}
	for _, segStr := range strings.Split(group("release"), ".") {
		seg, err := atoi("release", segStr)
		if err != nil {
			return nil, err
		}
		ver.Release = append(ver.Release, seg)
	}
	if preL := group("pre_l"); preL != "" {
		n, err := atoi("pre-release", group("pre_n"))
		if err != nil {
			return nil, err
		}
		ver.Pre = &PreRelease{L: preReleaseSpellings[strings.ToLower(preL)], N: n}
	}
	if postN := group("post_n1") + group("post_n2"); postN != "" || group("post_l") != "" {
		n, err := atoi("post-release", postN)
		if err != nil {
			return nil, err
		}
		ver.Post = &n
	}
	if group("dev_l") != "" {
		n, err := atoi("dev-release", group("dev_n"))
		if err != nil {
			return nil, err
		}
		ver.Dev = &n
	}
	if local := group("local"); local != "" {
		for _, part := range strings.FieldsFunc(local, func(r rune) bool {
			return strings.ContainsRune("-_.", r)
		}) {
			seg, err := parseLocalSegment(strings.ToLower(part))
			if err != nil {
				return nil, err
			}
			ver.Local = append(ver.Local, seg)
		}
	}
	return &ver, nil
}

// parseLocalSegment parses one dot-separated part of a local version label; all-digit parts are
// numbers, and must fit in an int32.
func parseLocalSegment(part string) (intstr.IntOrString, error) {
	n, err := strconv.ParseInt(part, 10, 32)
	switch {
	case err == nil:
		return intstr.FromInt32(int32(n)), nil
	case errors.Is(err, strconv.ErrRange):
		return intstr.IntOrString{}, fmt.Errorf("local: %w", err)
	default:
		return intstr.FromString(part), nil
	}
}
