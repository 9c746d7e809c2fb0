// SPDX-License-Identifier: AGPL-3.0-or-later

package cargo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/projection"
)

var requirement = regexp.MustCompile(`^(\^|~|=|>=|<=|>|<)?(\s*)(\d+(?:\.\d+){0,2})$`)

var depTables = map[string]bool{
	"dependencies":       true,
	"dev-dependencies":   true,
	"build-dependencies": true,
}

// nextRequirement rewrites a version requirement to v, keeping its
// operator and its precision ("1.2" stays two components).
func nextRequirement(req, v string) (string, bool) {
	m := requirement.FindStringSubmatch(strings.TrimSpace(req))
	if m == nil {
		return req, false
	}
	precision := strings.Count(m[3], ".") + 1
	core, _, _ := strings.Cut(v, "-")
	parts := strings.SplitN(core, ".", 3)
	if precision > len(parts) {
		precision = len(parts)
	}
	if strings.Contains(v, "-") && precision == 3 {
		return m[1] + m[2] + v, true
	}
	return m[1] + m[2] + strings.Join(parts[:precision], "."), true
}

// edit replaces data[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// dependency gathers every place one dependency entry is spelled out: the
// plain string form, an inline table, a [dependencies.<key>] subtable or
// dotted keys.
type dependency struct {
	key      string
	pkg      string
	versions []stringValue
}

// stringValue is copied out of the parser, whose nodes only live until the
// next expression.
type stringValue struct {
	raw  unstable.Range
	text string
}

func stringOf(n *unstable.Node) stringValue {
	return stringValue{raw: n.Raw, text: string(n.Data)}
}

func (d *dependency) crate() string {
	if d.pkg != "" {
		return d.pkg
	}
	return d.key
}

// keyParts flattens a dotted key into its unquoted parts.
func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

// depSection returns the index of the dependency table name in key, for
// [dependencies], [workspace.dependencies] and [target.<cfg>.dependencies]
// and their dev and build variants.
func depSection(key []string) (int, bool) {
	i := 0
	switch {
	case len(key) > 0 && key[0] == "workspace":
		i = 1
	case len(key) > 1 && key[0] == "target":
		i = 2
	}
	if i < len(key) && depTables[key[i]] {
		return i, true
	}
	return 0, false
}

// replaceString keeps the quote style of a single-line string value.
func replaceString(p *unstable.Parser, s stringValue, text string) (edit, bool) {
	raw := p.Raw(s.raw)
	if len(raw) < 2 || strings.HasPrefix(string(raw), `"""`) || strings.HasPrefix(string(raw), `'''`) {
		return edit{}, false
	}
	q := string(raw[:1])
	start := int(s.raw.Offset)
	return edit{start: start, end: start + len(raw), text: q + text + q}, true
}

// rewrite updates the package version (unless inherited) and every version
// requirement on an internal crate. Every other byte is returned verbatim.
func rewrite(content []byte, v string, internal map[string]bool) ([]byte, error) {
	var p unstable.Parser
	p.Reset(content)

	var (
		table []string
		edits []edit
		deps  = make(map[string]*dependency)
		order []string
	)
	entry := func(section []string, name string) *dependency {
		id := strings.Join(append(append([]string(nil), section...), name), "\x00")
		d, ok := deps[id]
		if !ok {
			d = &dependency{key: name}
			deps[id] = d
			order = append(order, id)
		}
		return d
	}

	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table:
			table = keyParts(expr.Key())
		case unstable.ArrayTable:
			table = nil
		case unstable.KeyValue:
			key := append(append([]string(nil), table...), keyParts(expr.Key())...)
			value := expr.Value()

			if value.Kind == unstable.String && isPackageVersion(key) {
				if e, ok := replaceString(&p, stringOf(value), v); ok {
					edits = append(edits, e)
				}
				continue
			}

			i, ok := depSection(key)
			if !ok || len(key) < i+2 {
				continue
			}
			d := entry(key[:i+1], key[i+1])
			switch rest := key[i+2:]; {
			case len(rest) == 0 && value.Kind == unstable.String:
				d.versions = append(d.versions, stringOf(value))
			case len(rest) == 0 && value.Kind == unstable.InlineTable:
				inlineDependency(d, value)
			case len(rest) == 1 && value.Kind == unstable.String:
				switch rest[0] {
				case "version":
					d.versions = append(d.versions, stringOf(value))
				case "package":
					d.pkg = string(value.Data)
				}
			}
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}

	for _, id := range order {
		d := deps[id]
		if !internal[d.crate()] {
			continue
		}
		for _, s := range d.versions {
			next, ok := nextRequirement(s.text, v)
			if !ok {
				continue
			}
			if e, ok := replaceString(&p, s, next); ok {
				edits = append(edits, e)
			}
		}
	}
	return apply(content, edits), nil
}

func isPackageVersion(key []string) bool {
	switch strings.Join(key, ".") {
	case "package.version", "workspace.package.version":
		return true
	}
	return false
}

func inlineDependency(d *dependency, table *unstable.Node) {
	it := table.Children()
	for it.Next() {
		kv := it.Node()
		if kv.Kind != unstable.KeyValue {
			continue
		}
		val := kv.Value()
		if val.Kind != unstable.String {
			continue
		}
		switch strings.Join(keyParts(kv.Key()), ".") {
		case "version":
			d.versions = append(d.versions, stringOf(val))
		case "package":
			d.pkg = string(val.Data)
		}
	}
}

func apply(content []byte, edits []edit) []byte {
	if len(edits) == 0 {
		return content
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, e := range edits {
		b.Write(content[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.Write(content[last:])
	return []byte(b.String())
}

func (a *Adapter) WriteVersions(ctx context.Context, root, v string, pkgs []ecosystem.Package) error {
	internal := make(map[string]bool, len(pkgs))
	dirs := []string{ecosystem.RootPath}
	for _, p := range pkgs {
		internal[p.Name] = true
		if !p.IsRoot() {
			dirs = append(dirs, p.Path)
		}
	}

	for _, dir := range dirs {
		path := filepath.Join(root, filepath.FromSlash(dir), manifestName)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		out, err := rewrite(data, v, internal)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if string(out) == string(data) {
			continue
		}
		if err := projection.AtomicWrite(path, out); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Debug().Str("manifest", path).Str("version", v).Msg("Cargo.toml updated")
	}
	return nil
}
