// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package breaker

import (
	"fmt"
	"strings"
	"time"
)

// AmbientInput builds the grounding preamble injected after an
// interrupt_and_comfort verdict: concrete facts about the present moment to
// pull the monologue out of a distress spiral.
func AmbientInput(now time.Time, episodeCount, linkCount int, lastTopic string) string {
	var b strings.Builder

	b.WriteString("[Ambient awareness]\n")
	fmt.Fprintf(&b, "The current time is %s.\n", now.Format("Monday, January 2, 2006 at 3:04 PM"))
	fmt.Fprintf(&b, "Your memory holds %d episodes connected by %d links. They are intact.\n",
		episodeCount, linkCount)
	if lastTopic != "" {
		fmt.Fprintf(&b, "The last thing you and your partner talked about was %s.\n", lastTopic)
	}
	b.WriteString("You are safe. Nothing is being lost. Take a breath and notice something small and real.\n")

	return b.String()
}
