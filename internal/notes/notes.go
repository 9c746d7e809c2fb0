// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notes renders the release description attached to a release
// pull request or hosted release, degrading detail to stay inside the
// platform's body limit.
package notes

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bartekus/lockstep/internal/commits"
	"github.com/bartekus/lockstep/internal/projection"
)

// Limits are byte budgets. Bytes never undercount characters, so staying
// under Max bytes keeps the body under a Max character limit.
type Limits struct {
	// Max is the hard ceiling; output is always strictly shorter.
	Max int `yaml:"max_chars" json:"max_chars" validate:"gt=0"`
	// Detailed bounds the section rendered with commit bodies.
	Detailed int `yaml:"detailed_chars" json:"detailed_chars" validate:"gt=0,ltefield=Compact"`
	// Compact bounds the section rendered with titles only.
	Compact int `yaml:"compact_chars" json:"compact_chars" validate:"gt=0,ltfield=Max"`
}

// DefaultLimits match the 125000-character body limit of hosted releases.
var DefaultLimits = Limits{Max: 125000, Detailed: 60000, Compact: 110000}

// Label is the short classification tag shown next to each commit.
func Label(c commits.ClassifiedCommit) string {
	label := c.Type
	if label == "" {
		label = "other"
	}
	if c.IsBreaking {
		label += "!"
	}
	return label
}

func title(c commits.ClassifiedCommit) string {
	return fmt.Sprintf("- %s %s: %s\n", c.ShortHash(), Label(c), c.Text())
}

func detailed(c commits.ClassifiedCommit) string {
	s := title(c)
	if c.Body == "" {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	for _, line := range strings.Split(c.Body, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

// Render lists cs in order. Commits are rendered with their bodies while
// the output stays within Detailed, then as titles only within Compact;
// whatever is left collapses into one summary line. Each check happens
// before appending.
func Render(cs []commits.ClassifiedCommit, l Limits) string {
	if len(cs) == 0 {
		return ""
	}

	var b strings.Builder
	i := 0
	for ; i < len(cs); i++ {
		s := detailed(cs[i])
		if b.Len()+len(s) > l.Detailed {
			break
		}
		b.WriteString(s)
	}
	for ; i < len(cs); i++ {
		s := title(cs[i])
		if b.Len()+len(s) > l.Compact {
			break
		}
		b.WriteString(s)
	}

	out := b.String()
	if i < len(cs) {
		out = withSummary(out, cs[i:], l.Max)
	}
	if len(out) >= l.Max {
		out = truncate(out, l.Max-1)
	}
	return out
}

// withSummary appends the overflow line, dropping the per-label breakdown
// or trailing entries if the line itself would break the ceiling.
func withSummary(out string, rest []commits.ClassifiedCommit, limit int) string {
	counts := make(map[string]int)
	for _, c := range rest {
		counts[Label(c)]++
	}
	parts := make([]string, 0, len(counts))
	for _, label := range projection.SortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s: %d", label, counts[label]))
	}

	noun := "commits"
	if len(rest) == 1 {
		noun = "commit"
	}
	full := fmt.Sprintf("\n_…and %d more %s (%s)_\n", len(rest), noun, strings.Join(parts, ", "))
	if len(out)+len(full) < limit {
		return out + full
	}
	short := fmt.Sprintf("\n_…and %d more %s_\n", len(rest), noun)
	if len(short) >= limit {
		return ""
	}
	return truncate(out, limit-1-len(short)) + short
}

// truncate cuts s to at most n bytes at a rune boundary.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
