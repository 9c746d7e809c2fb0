// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commits classifies commit messages with the conventional-commit
// grammar and attributes them to the packages they touch.
package commits

import (
	"regexp"
	"strings"

	cc "github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// ClassifiedCommit is one commit since the last release.
type ClassifiedCommit struct {
	Hash string `json:"hash"`

	// Type, Scope and Subject are empty when the title does not follow the
	// conventional grammar.
	Type    string `json:"type,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	IsBreaking           bool     `json:"breaking"`
	AffectedPackageNames []string `json:"packages,omitempty"`
	ChangedFiles         []string `json:"files,omitempty"`
	RawFirstLine         string   `json:"title"`
}

// Classified reports whether the title parsed as a conventional commit.
func (c ClassifiedCommit) Classified() bool {
	return c.Type != ""
}

// Text is the display line: the subject when classified, else the raw title.
func (c ClassifiedCommit) Text() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.RawFirstLine
}

// ShortHash is the abbreviated hash used in rendered output.
func (c ClassifiedCommit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

var breakingFooter = regexp.MustCompile(`(?m)^BREAKING[ -]CHANGE:`)

// Classify parses a full commit message. It never fails: messages outside
// the grammar come back with an empty Type and Subject.
func Classify(hash, message string) ClassifiedCommit {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	title, rest, _ := strings.Cut(message, "\n")
	out := ClassifiedCommit{
		Hash:         hash,
		RawFirstLine: strings.TrimSpace(title),
		Body:         strings.TrimSpace(rest),
	}

	// Only the header is parsed; the body is free text and the grammar
	// machine slows down sharply on long ones.
	if c := parse(out.RawFirstLine); c != nil {
		out.Type = strings.ToLower(c.Type)
		out.Subject = strings.TrimSpace(c.Description)
		if c.Scope != nil {
			out.Scope = *c.Scope
		}
		out.IsBreaking = c.Exclamation
	}
	if breakingFooter.MatchString(out.Body) {
		out.IsBreaking = true
	}
	return out
}

// parse runs the conventional-commit machine over a title in best-effort
// mode. A result without both type and description counts as unparsed.
func parse(title string) *cc.ConventionalCommit {
	machine := parser.NewMachine(
		parser.WithTypes(cc.TypesFreeForm),
		parser.WithBestEffort(),
	)
	msg, _ := machine.Parse([]byte(title))
	c, ok := msg.(*cc.ConventionalCommit)
	if !ok || c == nil || c.Type == "" || strings.TrimSpace(c.Description) == "" {
		return nil
	}
	return c
}
