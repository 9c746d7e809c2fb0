// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"sort"
	"strings"
)

// FilterOptions defines which candidate member directories are kept.
type FilterOptions struct {
	// ExcludeDirs is a list of directory names to exclude.
	// Matching is segment-aware: "vendor" excludes "vendor/foo" and "pkg/vendor/bar",
	// but not "vendor_stuff/foo".
	ExcludeDirs []string

	// Exclude lists member paths (or patterns already expanded to paths)
	// removed from the result, e.g. Cargo's workspace.exclude or npm's
	// "!pattern" entries.
	Exclude []string
}

// DefaultExcludeDirs are build output and dependency directories that never
// hold workspace members.
func DefaultExcludeDirs() []string {
	return []string{
		"node_modules",
		".git",
		"dist",
		"build",
		"out",
		"vendor",
		"target",
		".lockstep",
	}
}

// FilterDirs applies the filter options to slash-separated relative paths.
// It returns a new de-duplicated slice, sorted deterministically.
func FilterDirs(paths []string, opts FilterOptions) []string {
	if len(paths) == 0 {
		return nil
	}

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[strings.TrimSuffix(e, "/")] = true
	}

	seen := make(map[string]bool)
	var filtered []string
	for _, path := range paths {
		if seen[path] || excluded[path] || shouldExclude(path, opts.ExcludeDirs) {
			continue
		}
		seen[path] = true
		filtered = append(filtered, path)
	}

	sort.Strings(filtered)
	return filtered
}

// shouldExclude returns true if the path contains any of the excluded segments.
func shouldExclude(path string, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		for _, exclude := range excludes {
			if part == exclude {
				return true
			}
		}
	}
	return false
}
