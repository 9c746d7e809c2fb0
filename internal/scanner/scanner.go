// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scanner expands workspace member declarations into package
// directories.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ExpandMembers resolves workspace member patterns relative to root into
// the slash-separated directories that contain manifest. Patterns use
// filepath.Match syntax per segment; a "**" segment matches any depth.
// Patterns starting with "!" remove matches. Literal paths without a
// manifest are dropped, not reported.
func ExpandMembers(root string, patterns []string, manifest string, opts FilterOptions) ([]string, error) {
	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, neg)
			continue
		}
		include = append(include, p)
	}

	var dirs []string
	for _, p := range include {
		matches, err := expand(root, p, manifest)
		if err != nil {
			return nil, fmt.Errorf("expanding member pattern %q: %w", p, err)
		}
		dirs = append(dirs, matches...)
	}
	for _, p := range exclude {
		matches, err := expand(root, p, manifest)
		if err != nil {
			return nil, fmt.Errorf("expanding exclude pattern %q: %w", p, err)
		}
		opts.Exclude = append(opts.Exclude, matches...)
	}
	for _, p := range opts.Exclude {
		if !strings.ContainsAny(p, "*?[") {
			continue
		}
		matches, err := expand(root, p, manifest)
		if err != nil {
			return nil, fmt.Errorf("expanding exclude pattern %q: %w", p, err)
		}
		opts.Exclude = append(opts.Exclude, matches...)
	}
	return FilterDirs(dirs, opts), nil
}

func expand(root, pattern, manifest string) ([]string, error) {
	pattern = path.Clean(strings.TrimPrefix(filepath.ToSlash(pattern), "./"))
	pattern = strings.TrimSuffix(pattern, "/")

	if base, _, ok := strings.Cut(pattern, "**"); ok {
		return walk(root, strings.TrimSuffix(base, "/"), pattern, manifest)
	}

	matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		if hasFile(m, manifest) {
			rel, err := filepath.Rel(root, m)
			if err != nil {
				return nil, err
			}
			out = append(out, filepath.ToSlash(rel))
		}
	}
	return out, nil
}

// walk handles patterns containing "**" by visiting every directory under
// base and matching the remainder segment by segment.
func walk(root, base, pattern, manifest string) ([]string, error) {
	start := filepath.Join(root, filepath.FromSlash(base))
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if shouldExclude(d.Name(), DefaultExcludeDirs()) && p != start {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/")) && hasFile(p, manifest) {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

func hasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}
