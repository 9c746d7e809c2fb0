// SPDX-License-Identifier: AGPL-3.0-or-later

package npm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	utf8BOM = []byte("\ufeff")

	errInvalidJSON = errors.New("invalid JSON")
)

// keyPath addresses a string member at depth one ({"version", ""}) or two
// ({"dependencies", "left-pad"}).
type keyPath [2]string

// path renders p as a gjson path. Scoped names such as "@acme/core" carry
// path syntax and are escaped.
func (p keyPath) path() string {
	if p[1] == "" {
		return gjson.Escape(p[0])
	}
	return gjson.Escape(p[0]) + "." + gjson.Escape(p[1])
}

// splitBOM separates a leading UTF-8 byte order mark from the document.
func splitBOM(data []byte) (bom, doc []byte) {
	if bytes.HasPrefix(data, utf8BOM) {
		return data[:len(utf8BOM)], data[len(utf8BOM):]
	}
	return nil, data
}

// setStrings replaces the string values at the given paths and leaves every
// other byte of data untouched. Paths that do not exist are ignored.
func setStrings(data []byte, values map[keyPath]string) ([]byte, error) {
	bom, doc := splitBOM(data)
	if !gjson.ValidBytes(doc) {
		return nil, errInvalidJSON
	}

	out := doc
	for p, v := range values {
		path := p.path()
		cur := gjson.GetBytes(out, path)
		if cur.Type != gjson.String || cur.Str == v {
			continue
		}
		next, err := sjson.SetBytes(out, path, v)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return append(append([]byte(nil), bom...), out...), nil
}

func hasString(data []byte, p keyPath) bool {
	_, doc := splitBOM(data)
	return gjson.GetBytes(doc, p.path()).Type == gjson.String
}

// insertAfter adds a new top-level string member directly after the member
// at anchor, reusing the anchor line's indentation.
func insertAfter(data []byte, anchor keyPath, key, value string) ([]byte, error) {
	bom, doc := splitBOM(data)
	at := gjson.GetBytes(doc, anchor.path())
	if !at.Exists() || at.Index == 0 {
		return nil, errors.New("anchor member not found")
	}
	start, end := at.Index, at.Index+len(at.Raw)
	lineStart := bytes.LastIndexByte(doc[:start], '\n') + 1
	line := doc[lineStart:start]
	indent := line[:len(line)-len(bytes.TrimLeft(line, " \t"))]

	var b strings.Builder
	b.Write(bom)
	b.Write(doc[:end])
	b.WriteString(",\n")
	b.Write(indent)
	b.WriteString(quote(key))
	b.WriteString(": ")
	b.WriteString(quote(value))
	b.Write(doc[end:])
	return []byte(b.String()), nil
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimRight(buf.String(), "\n")
}
