// SPDX-License-Identifier: AGPL-3.0-or-later

// Package version resolves the repository's current release version from
// git history.
package version

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Zero is reported when history carries no release information.
const Zero = "0.0.0"

// strictPattern accepts MAJOR.MINOR.PATCH with an optional prerelease and
// build suffix and nothing else.
var strictPattern = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Valid reports whether s is a full semantic version, with or without a
// leading "v".
func Valid(s string) bool {
	return strictPattern.MatchString(s) && semver.IsValid(withV(s))
}

// Normalize strips a leading "v".
func Normalize(s string) string {
	return strings.TrimPrefix(s, "v")
}

// Compare orders two versions semantically, ignoring a leading "v".
func Compare(a, b string) int {
	return semver.Compare(withV(a), withV(b))
}

// Greatest picks the semantically greatest tag that is exactly prefix
// followed by a strict version. It returns the version without prefix or
// "v", and false when nothing matches.
func Greatest(tags []string, prefix string) (string, bool) {
	best := ""
	for _, tag := range tags {
		rest, ok := strings.CutPrefix(tag, prefix)
		if !ok || strings.Contains(rest, "/") || !Valid(rest) {
			continue
		}
		if best == "" || Compare(rest, best) > 0 {
			best = rest
		}
	}
	if best == "" {
		return "", false
	}
	return Normalize(best), true
}

func withV(s string) string {
	if strings.HasPrefix(s, "v") {
		return s
	}
	return "v" + s
}
