// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

// introductionPatterns match the ways a partner states their name
var introductionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bi\s+go\s+by\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bpeople\s+call\s+me\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bcall\s+me\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bthis\s+is\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bi'?m\s+([A-Za-z][A-Za-z'-]*)`),
}

// notNames are words that follow an introduction pattern without being a
// name ("I'm just checking in", "this is great")
var notNames = map[string]struct{}{
	"just": {}, "here": {}, "back": {}, "fine": {}, "okay": {},
	"great": {}, "sorry": {}, "glad": {}, "happy": {}, "sure": {},
	"not": {}, "also": {}, "still": {}, "now": {}, "always": {},
}

// DetectPartnerName scans a message for a self-introduction and returns the
// name with its first letter capitalized. Returns false when nothing
// plausible matches.
func DetectPartnerName(message string) (string, bool) {
	for _, pattern := range introductionPatterns {
		match := pattern.FindStringSubmatch(message)
		if match == nil {
			continue
		}
		candidate := match[1]
		if _, bad := notNames[strings.ToLower(candidate)]; bad {
			continue
		}
		return capitalize(candidate), true
	}
	return "", false
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
