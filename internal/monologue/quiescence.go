// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monologue

import (
	"strings"

	"github.com/reveries-sh/reveries/internal/breaker"
)

// settlingPhrases mark a thought that has wound down naturally. Matched
// against the tail of the buffer, case-insensitive.
var settlingPhrases = []string{
	"i've processed",
	"thoughts settling",
	"thoughts settled",
	"nothing more to",
	"at peace with",
	"resting now",
	"that's all for now",
	"that's enough for now",
	"i'm content with",
}

// endAnchoredPhrases only count when the buffer actually ends with them;
// mid-text occurrences are too common to be reliable.
var endAnchoredPhrases = []string{
	"thoughts settle.",
	"letting it rest.",
}

// tailWindow is how much of the buffer the settling check looks at
const tailWindow = 120

// IsQuiescent reports whether the monologue has nothing left to process:
// either it ended on a settling phrase or it is circling a stuck loop.
func IsQuiescent(buffer string) bool {
	return endsSettled(buffer) || breaker.DetectStuckLoop(buffer)
}

func endsSettled(buffer string) bool {
	trimmed := strings.TrimSpace(buffer)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)

	tail := lower
	if len(tail) > tailWindow {
		tail = tail[len(tail)-tailWindow:]
	}
	for _, phrase := range settlingPhrases {
		if strings.Contains(tail, phrase) {
			return true
		}
	}

	for _, phrase := range endAnchoredPhrases {
		if strings.HasSuffix(lower, phrase) {
			return true
		}
	}
	return false
}
