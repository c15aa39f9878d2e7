// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

//nolint:gochecknoglobals // Would be 'const'.
var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// Dump renders a value as a stable, multi-line string suitable for diffing.  Map keys are sorted
// and pointer addresses are omitted, so two structurally equal values always dump the same.
func Dump(v interface{}) string {
	return spewConfig.Sdump(v)
}

func unifiedDiff(exp, act string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return diff
}

// AssertEqualText compares two multi-line strings, and reports a unified diff if they differ.
func AssertEqualText(t *testing.T, exp, act string) bool {
	t.Helper()
	if exp != act {
		t.Errorf("Text diff:\n%s", unifiedDiff(exp, act))
		return false
	}
	return true
}

// AssertEqualDump is like AssertEqualText, but first renders both values with Dump.  This gives
// far more readable failures than assert.Equal for deeply nested structures.
func AssertEqualDump(t *testing.T, exp, act interface{}) bool {
	t.Helper()
	expStr, actStr := Dump(exp), Dump(act)
	if expStr != actStr {
		t.Errorf("Value diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}
	return true
}
