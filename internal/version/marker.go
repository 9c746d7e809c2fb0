// SPDX-License-Identifier: AGPL-3.0-or-later

package version

import (
	"fmt"
	"regexp"
	"strings"
)

const semverExpr = `v?((?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)`

// markerPatterns are the accepted release-announcement titles. A trailing
// squash-merge reference such as " (#123)" is tolerated.
var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?i:release):?\s+` + semverExpr + `(?:\s+\(#\d+\))?$`),
	regexp.MustCompile(`^chore:\s+(?i:release)\s+` + semverExpr + `(?:\s+\(#\d+\))?$`),
	regexp.MustCompile(`^chore\(release\):\s+(?:(?i:release)\s+)?` + semverExpr + `(?:\s+\(#\d+\))?$`),
}

// ParseMarker extracts the version a release-marker title announces.
func ParseMarker(title string) (string, bool) {
	title = strings.TrimSpace(title)
	for _, re := range markerPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// MarkerMessage is the commit title written for a release of v.
func MarkerMessage(v string) string {
	return fmt.Sprintf("chore: release v%s", Normalize(v))
}
