// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package assembler

import "strings"

// metaReflectionMarkers flag a monologue buffer that is reflecting on its
// own instructions instead of thinking about something real. Echoing that
// back into the conversation preamble would compound the failure.
var metaReflectionMarkers = []string{
	"my instructions",
	"my guidelines",
	"the prompt",
	"this prompt",
	"my system prompt",
	"i am told to",
	"i'm told to",
	"i am instructed",
	"i'm instructed",
	"as an ai",
	"my programming",
	"the rules i",
	"these constraints",
}

// IsMetaReflection reports whether the buffer reads as reflection about its
// own instructions. Case-insensitive substring match.
func IsMetaReflection(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range metaReflectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
