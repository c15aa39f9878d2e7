// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"fmt"
	"strings"
)

// Specifier is a comma-separated list of version clauses, all of which must match.  For example:
//
//	~= 0.9, >= 1.0, != 1.3.4.*, < 2.0
type Specifier []SpecifierClause

// ParseSpecifier parses a version specifier.  Empty clauses are ignored, so the empty string
// parses as a Specifier that matches everything.
func ParseSpecifier(str string) (Specifier, error) {
	clauseStrs := strings.Split(str, ",")
	ret := make(Specifier, 0, len(clauseStrs))
	for _, clauseStr := range clauseStrs {
		clauseStr = strings.TrimSpace(clauseStr)
		if clauseStr == "" {
			continue
		}
		clause, err := parseSpecifierClause(clauseStr)
		if err != nil {
			return nil, fmt.Errorf("pep440.ParseSpecifier: %w", err)
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

func (spec Specifier) String() string {
	clauses := make([]string, 0, len(spec))
	for _, clause := range spec {
		clauses = append(clauses, clause.String())
	}
	return strings.Join(clauses, ",")
}

// Match reports whether ver satisfies every clause.  Match does not apply any pre-release policy;
// see Select for that.
func (spec Specifier) Match(ver Version) bool {
	for _, clause := range spec {
		if !clause.Match(ver) {
			return false
		}
	}
	return true
}

// mentionsPreRelease reports whether any clause explicitly names a pre-release, which per PEP 440
// opts the specifier in to accepting pre-releases.
func (spec Specifier) mentionsPreRelease() bool {
	for _, clause := range spec {
		if clause.Version.IsPreRelease() {
			return true
		}
	}
	return false
}

type CmpOp int

const (
	CmpOpCompatible CmpOp = iota
	CmpOpStrictMatch
	CmpOpPrefixMatch
	CmpOpStrictExclude
	CmpOpPrefixExclude
	CmpOpLE
	CmpOpGE
	CmpOpLT
	CmpOpGT
)

//nolint:gochecknoglobals // Would be 'const'.
var cmpOpSpellings = map[CmpOp]string{
	CmpOpCompatible:    "~=",
	CmpOpStrictMatch:   "==",
	CmpOpPrefixMatch:   "==",
	CmpOpStrictExclude: "!=",
	CmpOpPrefixExclude: "!=",
	CmpOpLE:            "<=",
	CmpOpGE:            ">=",
	CmpOpLT:            "<",
	CmpOpGT:            ">",
}

func (op CmpOp) String() string {
	str, ok := cmpOpSpellings[op]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", int(op)))
	}
	switch op {
	case CmpOpPrefixMatch, CmpOpPrefixExclude:
		return "prefix " + str
	case CmpOpStrictMatch, CmpOpStrictExclude:
		return "strict " + str
	default:
		return str
	}
}

type SpecifierClause struct {
	CmpOp   CmpOp
	Version Version
}

func (clause SpecifierClause) String() string {
	str := cmpOpSpellings[clause.CmpOp] + clause.Version.String()
	if clause.CmpOp == CmpOpPrefixMatch || clause.CmpOp == CmpOpPrefixExclude {
		str += ".*"
	}
	return str
}

func parseSpecifierClause(str string) (SpecifierClause, error) {
	var ret SpecifierClause

	ops := []struct {
		prefix string
		op     CmpOp
	}{
		// longest first, so that "<=" isn't read as "<"
		{"===", -1},
		{"~=", CmpOpCompatible},
		{"==", CmpOpStrictMatch},
		{"!=", CmpOpStrictExclude},
		{"<=", CmpOpLE},
		{">=", CmpOpGE},
		{"<", CmpOpLT},
		{">", CmpOpGT},
	}
	found := false
	for _, op := range ops {
		if strings.HasPrefix(str, op.prefix) {
			if op.op < 0 {
				return ret, fmt.Errorf("specifiers with === are not supported; versions must be PEP 440 compliant")
			}
			ret.CmpOp = op.op
			str = strings.TrimSpace(str[len(op.prefix):])
			found = true
			break
		}
	}
	if !found {
		return ret, fmt.Errorf("invalid comparison operator: %q", str)
	}

	minSegments, devOK, localOK := 1, true, false
	switch ret.CmpOp {
	case CmpOpCompatible:
		minSegments = 2
	case CmpOpStrictMatch, CmpOpStrictExclude:
		localOK = true
		if strings.HasSuffix(str, ".*") {
			ret.CmpOp++ // Strict→Prefix
			str = strings.TrimSuffix(str, ".*")
			devOK, localOK = false, false
		}
	}

	ver, err := parseVersion(str)
	if err != nil {
		return ret, err
	}
	if len(ver.Release) < minSegments {
		return ret, fmt.Errorf("at least %d release segments required in %s specifier clauses",
			minSegments, ret.CmpOp)
	}
	if ver.Dev != nil && !devOK {
		return ret, fmt.Errorf("dev-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	if len(ver.Local) > 0 && !localOK {
		return ret, fmt.Errorf("local-part not permitted in %s specifier clauses", ret.CmpOp)
	}
	ret.Version = *ver
	return ret, nil
}

// Match reports whether ver satisfies this one clause.
func (clause SpecifierClause) Match(ver Version) bool {
	spec := clause.Version
	switch clause.CmpOp {
	case CmpOpCompatible:
		prefix := Version{Epoch: spec.Epoch, Release: spec.Release[:len(spec.Release)-1]}
		return spec.Cmp(ver.Public()) <= 0 && matchPrefix(prefix, ver)
	case CmpOpStrictMatch:
		return matchStrict(spec, ver)
	case CmpOpPrefixMatch:
		return matchPrefix(spec, ver)
	case CmpOpStrictExclude:
		return !matchStrict(spec, ver)
	case CmpOpPrefixExclude:
		return !matchPrefix(spec, ver)
	case CmpOpLE:
		return ver.Public().Cmp(spec) <= 0
	case CmpOpGE:
		return ver.Public().Cmp(spec) >= 0
	case CmpOpLT:
		// "<V" excludes pre-releases of V itself, unless V is itself a pre-release.
		if ver.Public().Cmp(spec) >= 0 {
			return false
		}
		if !spec.IsPreRelease() && ver.IsPreRelease() && cmpRelease(ver, spec) == 0 &&
			ver.Epoch == spec.Epoch {
			return false
		}
		return true
	case CmpOpGT:
		// ">V" excludes post-releases of V, unless V is itself a post-release.
		if ver.Public().Cmp(spec) <= 0 {
			return false
		}
		if spec.Post == nil && ver.Post != nil && cmpRelease(ver, spec) == 0 &&
			ver.Epoch == spec.Epoch {
			return false
		}
		return true
	default:
		panic(fmt.Errorf("invalid CmpOp: %d", int(clause.CmpOp)))
	}
}

func matchStrict(spec, ver Version) bool {
	if len(spec.Local) == 0 {
		return spec.Cmp(ver.Public()) == 0
	}
	return spec.Cmp(ver) == 0
}

// matchPrefix implements "==V.*": the candidate's release is truncated (or zero-padded) to the
// length of V's release, and the parts of V after the release must match exactly.
func matchPrefix(spec, ver Version) bool {
	if spec.Epoch != ver.Epoch {
		return false
	}
	for i := range spec.Release {
		if ver.releaseSegment(i) != spec.Release[i] {
			return false
		}
	}
	if spec.Pre == nil && spec.Post == nil {
		return true
	}
	// When the prefix has a pre or post part, the candidate's release must not be any longer.
	for i := len(spec.Release); i < len(ver.Release); i++ {
		if ver.Release[i] != 0 {
			return false
		}
	}
	if (spec.Pre == nil) != (ver.Pre == nil) {
		return false
	}
	if spec.Pre != nil && *spec.Pre != *ver.Pre {
		return false
	}
	if spec.Post == nil {
		return true
	}
	return ver.Post != nil && *spec.Post == *ver.Post
}
