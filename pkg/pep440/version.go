// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements the parts of PEP 440 -- Version Identification and Dependency
// Specification that are needed to check the version constraints in a Pipfile.
//
// https://www.python.org/dev/peps/pep-0440/
package pep440

import (
	"cmp"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// Version is a parsed PEP 440 version identifier:
//
//	[N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local]
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   []intstr.IntOrString
}

// PreRelease is the pre-release segment of a version; L is always one of the normalized
// spellings "a", "b", or "rc".
type PreRelease struct {
	L string
	N int
}

//nolint:gochecknoglobals // Would be 'const'.
var preReleaseOrder = map[string]int{
	"a":  -3,
	"b":  -2,
	"rc": -1,
}

func (ver Version) String() string {
	var ret strings.Builder
	ver.writePublic(&ret)
	sep := "+"
	for _, seg := range ver.Local {
		ret.WriteString(sep)
		ret.WriteString(seg.String())
		sep = "."
	}
	return ret.String()
}

func (ver Version) writePublic(ret *strings.Builder) {
	if ver.Epoch > 0 {
		fmt.Fprintf(ret, "%d!", ver.Epoch)
	}
	for i, seg := range ver.Release {
		if i > 0 {
			ret.WriteByte('.')
		}
		fmt.Fprintf(ret, "%d", seg)
	}
	if ver.Pre != nil {
		fmt.Fprintf(ret, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(ret, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(ret, ".dev%d", *ver.Dev)
	}
}

// Public returns the version with any local segment removed.
func (ver Version) Public() Version {
	ver.Local = nil
	return ver
}

func (ver Version) releaseSegment(n int) int {
	if n < len(ver.Release) {
		return ver.Release[n]
	}
	return 0
}

func (ver Version) Major() int { return ver.releaseSegment(0) }
func (ver Version) Minor() int { return ver.releaseSegment(1) }
func (ver Version) Micro() int { return ver.releaseSegment(2) }

// IsPreRelease reports whether this is a pre-release or a development release.
func (ver Version) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

// IsFinal reports whether the version is a plain release, with no pre, post, dev, or local parts.
func (ver Version) IsFinal() bool {
	return ver.Pre == nil && ver.Post == nil && ver.Dev == nil && len(ver.Local) == 0
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b Version) int {
	for i := 0; i < len(a.Release) || i < len(b.Release); i++ {
		if d := a.releaseSegment(i) - b.releaseSegment(i); d != 0 {
			return sign(d)
		}
	}
	return 0
}

// preKey ranks the pre-release part.  A dev release with no pre or post part sorts before any
// pre-release of the same release ("1.0.dev1" < "1.0a1"), and a final release sorts after all of
// them.
func preKey(ver Version) (int, int) {
	switch {
	case ver.Pre != nil:
		return preReleaseOrder[ver.Pre.L], ver.Pre.N
	case ver.Dev != nil && ver.Post == nil:
		return -4, 0
	default:
		return 0, 0
	}
}

func cmpPre(a, b Version) int {
	aL, aN := preKey(a)
	bL, bN := preKey(b)
	if aL != bL {
		return sign(aL - bL)
	}
	return sign(aN - bN)
}

func cmpOptional(a, b *int, missing int) int {
	av, bv := missing, missing
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return sign(av - bv)
}

func cmpLocalSegment(a, b intstr.IntOrString) int {
	switch {
	case a.Type == intstr.Int && b.Type == intstr.Int:
		return cmp.Compare(a.IntVal, b.IntVal)
	case a.Type == intstr.String && b.Type == intstr.String:
		return strings.Compare(a.StrVal, b.StrVal)
	case a.Type == intstr.Int:
		// numeric segments sort after alphanumeric ones
		return 1
	default:
		return -1
	}
}

func cmpLocal(a, b Version) int {
	for i := 0; i < len(a.Local) && i < len(b.Local); i++ {
		if d := cmpLocalSegment(a.Local[i], b.Local[i]); d != 0 {
			return d
		}
	}
	return sign(len(a.Local) - len(b.Local))
}

// Cmp returns -1, 0, or +1 depending on whether a sorts before, the same as, or after b.
func (a Version) Cmp(b Version) int {
	if d := sign(a.Epoch - b.Epoch); d != 0 {
		return d
	}
	if d := cmpRelease(a, b); d != 0 {
		return d
	}
	if d := cmpPre(a, b); d != 0 {
		return d
	}
	// a missing post part sorts before any post release
	if d := cmpOptional(a.Post, b.Post, -1); d != 0 {
		return d
	}
	if a.Dev == nil || b.Dev == nil {
		// a missing dev part sorts after any dev release
		if (a.Dev == nil) != (b.Dev == nil) {
			if a.Dev == nil {
				return 1
			}
			return -1
		}
	} else if d := sign(*a.Dev - *b.Dev); d != 0 {
		return d
	}
	return cmpLocal(a, b)
}
