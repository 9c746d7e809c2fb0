// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bump derives the next release version from classified commits.
package bump

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bartekus/lockstep/internal/commits"
	"github.com/bartekus/lockstep/internal/version"
)

// Bump is a semver increment class.
type Bump string

const (
	None  Bump = "none"
	Patch Bump = "patch"
	Minor Bump = "minor"
	Major Bump = "major"
)

// Calculate returns the strongest increment any commit asks for. Breaking
// changes outrank features, which outrank fixes and performance work;
// everything else, including unclassified commits, asks for nothing.
func Calculate(cs []commits.ClassifiedCommit) Bump {
	result := None
	for _, c := range cs {
		switch {
		case c.IsBreaking:
			return Major
		case c.Type == "feat":
			result = Minor
		case (c.Type == "fix" || c.Type == "perf") && result == None:
			result = Patch
		}
	}
	return result
}

// Next applies b to current. Prerelease and build suffixes are dropped and
// lower components reset. None returns current unchanged.
func Next(current string, b Bump) (string, error) {
	if !version.Valid(current) {
		return "", fmt.Errorf("invalid current version %q", current)
	}
	core := version.Normalize(current)
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid version component %q in %q", p, current)
		}
		nums[i] = n
	}

	switch b {
	case None:
		return version.Normalize(current), nil
	case Major:
		nums[0], nums[1], nums[2] = nums[0]+1, 0, 0
	case Minor:
		nums[1], nums[2] = nums[1]+1, 0
	case Patch:
		nums[2]++
	default:
		return "", fmt.Errorf("unknown bump %q", b)
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]), nil
}
