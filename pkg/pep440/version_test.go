// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/datawire/jab/pkg/pep440"
)

func intPtr(i int) *int {
	return &i
}

func TestParseVersion(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		InStr  string
		OutVal *pep440.Version
		OutErr string
	}{
		"simple":      {"3.7", &pep440.Version{Release: []int{3, 7}}, ""},
		"v-prefix":    {"v1.0", &pep440.Version{Release: []int{1, 0}}, ""},
		"epoch":       {"2!1.0", &pep440.Version{Epoch: 2, Release: []int{1, 0}}, ""},
		"alpha-spell": {"1.0alpha2", &pep440.Version{Release: []int{1, 0}, Pre: &pep440.PreRelease{L: "a", N: 2}}, ""},
		"c-spell":     {"1.0-c1", &pep440.Version{Release: []int{1, 0}, Pre: &pep440.PreRelease{L: "rc", N: 1}}, ""},
		"implicit-n":  {"1.0b", &pep440.Version{Release: []int{1, 0}, Pre: &pep440.PreRelease{L: "b", N: 0}}, ""},
		"post-dash":   {"1.0-3", &pep440.Version{Release: []int{1, 0}, Post: intPtr(3)}, ""},
		"post-rev":    {"1.0.rev", &pep440.Version{Release: []int{1, 0}, Post: intPtr(0)}, ""},
		"dev":         {"1.0.dev4", &pep440.Version{Release: []int{1, 0}, Dev: intPtr(4)}, ""},
		"local": {"1.0+Ubuntu-1", &pep440.Version{
			Release: []int{1, 0},
			Local:   []intstr.IntOrString{intstr.FromString("ubuntu"), intstr.FromInt(1)},
		}, ""},
		"local-max": {"1.0+2147483647", &pep440.Version{
			Release: []int{1, 0},
			Local:   []intstr.IntOrString{intstr.FromInt32(2147483647)},
		}, ""},
		"local-overflow": {"1.0+2147483648", nil,
			`pep440.ParseVersion: local: strconv.ParseInt: parsing "2147483648": value out of range`},
		"empty":   {"", nil, `pep440.ParseVersion: invalid version: ""`},
		"garbage": {"three.seven", nil, `pep440.ParseVersion: invalid version: "three.seven"`},
		"star":    {"*", nil, `pep440.ParseVersion: invalid version: "*"`},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			val, err := pep440.ParseVersion(tc.InStr)
			assert.Equal(t, tc.OutVal, val)
			if tc.OutErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tc.OutErr)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"1.0alpha2":     "1.0a2",
		"1!2.0-rc.3":    "1!2.0rc3",
		"1.0-1":         "1.0.post1",
		"1.0.dev":       "1.0.dev0",
		"1.0+abc.7":     "1.0+abc.7",
		"1.0.post2.dev": "1.0.post2.dev0",
	}
	for in, exp := range testcases {
		in, exp := in, exp
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			ver, err := pep440.ParseVersion(in)
			require.NoError(t, err)
			assert.Equal(t, exp, ver.String())
		})
	}
}

func TestVersionOrdering(t *testing.T) {
	t.Parallel()
	// Straight from PEP 440's "Summary of permitted suffixes and relative ordering".
	ordered := []string{
		"1.0.dev456",
		"1.0a1",
		"1.0a2.dev456",
		"1.0a12.dev456",
		"1.0a12",
		"1.0b1.dev456",
		"1.0b2",
		"1.0b2.post345.dev456",
		"1.0b2.post345",
		"1.0rc1.dev456",
		"1.0rc1",
		"1.0",
		"1.0+abc.5",
		"1.0+abc.7",
		"1.0+0",
		"1.0+5",
		"1.0+2147483647",
		"1.0.post456.dev34",
		"1.0.post456",
		"1.0.15",
		"1.1.dev1",
		"1!0.1",
	}
	for i := range ordered {
		for j := range ordered {
			a := pep440.MustParseVersion(ordered[i])
			b := pep440.MustParseVersion(ordered[j])
			var exp int
			switch {
			case i < j:
				exp = -1
			case i > j:
				exp = 1
			}
			assert.Equalf(t, exp, a.Cmp(b), "cmp(%q, %q)", ordered[i], ordered[j])
		}
	}
}

func TestVersionPadding(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, pep440.MustParseVersion("1.0").Cmp(pep440.MustParseVersion("1.0.0")))
	assert.Equal(t, 3, pep440.MustParseVersion("3.7.1").Major())
	assert.Equal(t, 7, pep440.MustParseVersion("3.7.1").Minor())
	assert.Equal(t, 0, pep440.MustParseVersion("3.7").Micro())
	assert.True(t, pep440.MustParseVersion("1.0rc1").IsPreRelease())
	assert.True(t, pep440.MustParseVersion("1.0.dev1").IsPreRelease())
	assert.False(t, pep440.MustParseVersion("1.0.post1").IsPreRelease())
	assert.False(t, pep440.MustParseVersion("1.0.post1").IsFinal())
}
