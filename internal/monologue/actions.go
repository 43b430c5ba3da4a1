// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monologue

import (
	"regexp"
	"strings"
)

// Action is an out-of-band instruction the model embedded in its monologue
type Action struct {
	Kind    string
	Content string
}

// ActionReachOut asks the daemon to send the partner a proactive message
const ActionReachOut = "REACH_OUT"

var actionMarkerPattern = regexp.MustCompile(`\[([A-Z_]+):\s*([^\]]*)\]`)

// ParseActions pulls action markers like [REACH_OUT: message] out of the
// buffer, returning the actions and the buffer with markers stripped. The
// stripped buffer is what gets encoded as a raw experience; the markers are
// plumbing, not thought.
func ParseActions(buffer string) ([]Action, string) {
	var actions []Action
	for _, match := range actionMarkerPattern.FindAllStringSubmatch(buffer, -1) {
		actions = append(actions, Action{
			Kind:    match[1],
			Content: strings.TrimSpace(match[2]),
		})
	}

	stripped := actionMarkerPattern.ReplaceAllString(buffer, "")
	stripped = strings.TrimSpace(collapseBlankRuns(stripped))
	return actions, stripped
}

// collapseBlankRuns squeezes the blank lines marker removal leaves behind
func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
