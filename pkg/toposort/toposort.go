// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package toposort orders items so that every item comes after the items it depends on.
package toposort

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// CircularDependencyError is returned when the dependency data contains a cycle.  Data holds the
// part of the input that could not be ordered: every key in it is part of, or depends on, a cycle.
type CircularDependencyError[K cmp.Ordered] struct {
	Data map[K][]K
}

func (e *CircularDependencyError[K]) Error() string {
	keys := make([]K, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%v:%v", k, e.Data[k]))
	}
	return "circular dependencies exist among these items: {" + strings.Join(parts, ", ") + "}"
}

// Sort takes a map from each item to the items it depends on, and returns the items grouped in to
// levels.  Every item in a level depends only on items in earlier levels.  Items within a level
// are sorted.
//
// Items that appear only as a dependency are treated as having no dependencies.  An item listed
// as depending on itself is not a cycle; the self-reference is ignored.
func Sort[K cmp.Ordered](deps map[K][]K) ([][]K, error) {
	// remaining[item] = set of unsatisfied dependencies
	remaining := make(map[K]map[K]struct{}, len(deps))
	for item, itemDeps := range deps {
		set := make(map[K]struct{}, len(itemDeps))
		for _, dep := range itemDeps {
			if dep == item {
				continue
			}
			set[dep] = struct{}{}
			if _, ok := deps[dep]; !ok {
				if _, ok := remaining[dep]; !ok {
					remaining[dep] = make(map[K]struct{})
				}
			}
		}
		remaining[item] = set
	}

	var levels [][]K
	for len(remaining) > 0 {
		var level []K
		for item, set := range remaining {
			if len(set) == 0 {
				level = append(level, item)
			}
		}
		if len(level) == 0 {
			rest := make(map[K][]K, len(remaining))
			for item, set := range remaining {
				itemDeps := make([]K, 0, len(set))
				for dep := range set {
					itemDeps = append(itemDeps, dep)
				}
				slices.Sort(itemDeps)
				rest[item] = itemDeps
			}
			return levels, &CircularDependencyError[K]{Data: rest}
		}
		slices.Sort(level)
		for _, item := range level {
			delete(remaining, item)
		}
		for _, set := range remaining {
			for _, item := range level {
				delete(set, item)
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// Flatten is like Sort, but concatenates the levels in to a single list.
func Flatten[K cmp.Ordered](deps map[K][]K) ([]K, error) {
	levels, err := Sort(deps)
	if err != nil {
		return nil, err
	}
	var ret []K
	for _, level := range levels {
		ret = append(ret, level...)
	}
	return ret, nil
}
