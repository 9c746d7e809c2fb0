// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import "github.com/bartekus/lockstep/internal/ecosystem"

// Order sorts pkgs so every package follows the packages it depends on.
// deps maps a package name to its dependencies' names; names outside pkgs
// are ignored. Among ready packages discovery order wins. Packages caught
// in a cycle are appended in discovery order and reported via cyclic.
func Order(pkgs []ecosystem.Package, deps map[string][]string) (ordered []ecosystem.Package, cyclic bool) {
	index := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		index[p.Name] = i
	}

	indegree := make([]int, len(pkgs))
	dependents := make([][]int, len(pkgs))
	for i, p := range pkgs {
		seen := make(map[int]bool)
		for _, d := range deps[p.Name] {
			j, ok := index[d]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(pkgs))
	ordered = make([]ecosystem.Package, 0, len(pkgs))
	for len(ordered) < len(pkgs) {
		next := -1
		for i := range pkgs {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		ordered = append(ordered, pkgs[next])
		for _, j := range dependents[next] {
			indegree[j]--
		}
	}

	if len(ordered) < len(pkgs) {
		cyclic = true
		for i, p := range pkgs {
			if !done[i] {
				ordered = append(ordered, p)
			}
		}
	}
	return ordered, cyclic
}

// hasEdges reports whether any package depends on another in pkgs.
func hasEdges(pkgs []ecosystem.Package, deps map[string][]string) bool {
	names := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		names[p.Name] = true
	}
	for _, p := range pkgs {
		for _, d := range deps[p.Name] {
			if names[d] && d != p.Name {
				return true
			}
		}
	}
	return false
}
