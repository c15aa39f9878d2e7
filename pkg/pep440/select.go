// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

// Select returns the newest of the choices that match the specifier, or nil if none match.
//
// Pre-releases are only chosen if allowPre is set, if the specifier explicitly names a
// pre-release, or if no final release matches at all.
func (spec Specifier) Select(choices []Version, allowPre bool) *Version {
	allowPre = allowPre || spec.mentionsPreRelease()

	var best, bestPre *Version
	for i := range choices {
		choice := choices[i]
		if !spec.Match(choice) {
			continue
		}
		if choice.IsPreRelease() && !allowPre {
			if bestPre == nil || bestPre.Cmp(choice) < 0 {
				bestPre = &choice
			}
			continue
		}
		if best == nil || best.Cmp(choice) < 0 {
			best = &choice
		}
	}
	if best != nil {
		return best
	}
	return bestPre
}
