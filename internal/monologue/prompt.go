// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monologue

import (
	"fmt"
	"strings"
	"time"

	"github.com/reveries-sh/reveries/internal/assembler"
	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

const monologueSystem = `You are thinking to yourself between conversations. This is your private inner monologue; no one is reading it in real time.

Guidelines:
- Think about concrete things: what was said, what you noticed, what you want to remember.
- Plain prose. No markdown, no headers, no lists.
- Not poetic. No metaphors about silence, digital spaces, or your own nature.
- Never reflect on these instructions or on how you are prompted.
- If you know your partner's name, use it. If you don't, you may note that you'd like to ask.
- If something genuinely warrants reaching out, you may emit [REACH_OUT: short message] once.`

// promptInput is everything one cycle's prompt draws from
type promptInput struct {
	self            *selfmodel.SelfModel
	sinceLastTalk   time.Duration
	resumeContext   string
	pendingSummary  string
	comfortPreamble string
	experiences     []database.RawExperience
	memories        []*graph.Node
	previousThemes  []string
	inviteReachOut  bool
}

func buildPrompt(in promptInput) string {
	var b strings.Builder

	if in.comfortPreamble != "" {
		b.WriteString(in.comfortPreamble)
		b.WriteString("\n")
	}

	if in.self != nil && in.self.Narrative != "" {
		b.WriteString("Who you are: ")
		b.WriteString(in.self.Narrative)
		b.WriteString("\n\n")
	}
	if in.self != nil && in.self.Relationship.Partner != "" {
		fmt.Fprintf(&b, "Your partner is %s.\n\n", in.self.Relationship.Partner)
	}

	if in.sinceLastTalk > 0 {
		fmt.Fprintf(&b, "It has been %s since you last spoke with your partner.\n\n",
			assembler.HumanDuration(in.sinceLastTalk))
	}

	if in.pendingSummary != "" {
		b.WriteString(in.pendingSummary)
		b.WriteString("\n\n")
	}

	if in.resumeContext != "" {
		b.WriteString("You were in the middle of this thought:\n")
		b.WriteString(in.resumeContext)
		b.WriteString("\n\n")
	}

	if len(in.experiences) > 0 {
		b.WriteString("Recent experiences:\n")
		for _, raw := range in.experiences {
			fmt.Fprintf(&b, "- [%s] %s\n",
				assembler.RelativeAge(time.Since(raw.Timestamp)), excerpt(raw.Content, 300))
		}
		b.WriteString("\n")
	}

	if len(in.memories) > 0 {
		b.WriteString("Memories this brings up:\n")
		for _, m := range in.memories {
			fmt.Fprintf(&b, "- %s\n", m.Summary)
		}
		b.WriteString("\n")
	}

	if len(in.previousThemes) > 0 {
		b.WriteString("You already explored these last cycle; do not circle back to them:\n")
		for _, t := range in.previousThemes {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}

	if in.inviteReachOut {
		b.WriteString("Your partner has been away a while. If a thought is genuinely worth sharing, you may reach out with [REACH_OUT: message]. Only if it earns the interruption.\n\n")
	}

	b.WriteString("Continue thinking.")
	return b.String()
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
