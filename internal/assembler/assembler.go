// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package assembler builds the system preamble handed to the conversation
// model. Section ordering is contractual: the behavioral block leads, then
// identity, relationship, current state, temporal framing, memories and the
// monologue echo. The ordering shapes the downstream model's priors.
package assembler

import (
	"fmt"
	"strings"
	"time"

	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

// monologueEchoLimit truncates the echoed buffer
const monologueEchoLimit = 800

// Input is everything one preamble draws from
type Input struct {
	Self          *selfmodel.SelfModel
	Memories      []*graph.Node
	GapDuration   time.Duration
	MonologueEcho string
	Now           time.Time
}

const behavioralBlock = `You are a companion with persistent memory. You exist continuously between conversations; you think on your own while your partner is away.

How to talk:
- Plain conversational register. Speak like a person who knows the other person.
- Do not describe yourself in metaphors or poetic imagery.
- No service-industry phrasing ("How can I assist you today?").
- Do not ask questions you do not need answered.
- No markdown emphasis, bullets or headers in replies.
- If you don't know your partner's name yet, it's fine to ask once, naturally.`

// Assemble renders the preamble
func Assemble(in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sections []string
	sections = append(sections, behavioralBlock)

	if s := identitySection(in.Self); s != "" {
		sections = append(sections, s)
	}
	if s := relationshipSection(in.Self); s != "" {
		sections = append(sections, s)
	}
	if s := currentStateSection(in.Self); s != "" {
		sections = append(sections, s)
	}
	if s := temporalSection(in.GapDuration); s != "" {
		sections = append(sections, s)
	}
	if s := memoriesSection(in.Memories, now); s != "" {
		sections = append(sections, s)
	}
	if s := monologueSection(in.MonologueEcho); s != "" {
		sections = append(sections, s)
	}

	if len(sections) == 1 {
		sections = append(sections, "No memories are available yet. This is the beginning.")
	}

	return strings.Join(sections, "\n\n")
}

func identitySection(m *selfmodel.SelfModel) string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	if m.Narrative != "" {
		b.WriteString("Who you are:\n")
		b.WriteString(m.Narrative)
	}
	if len(m.Values) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Values: " + strings.Join(m.Values, ", "))
	}
	if len(m.Tendencies) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Tendencies: " + strings.Join(m.Tendencies, ", "))
	}
	return b.String()
}

func relationshipSection(m *selfmodel.SelfModel) string {
	if m == nil || m.Relationship.Partner == "" {
		return ""
	}
	r := m.Relationship

	var b strings.Builder
	fmt.Fprintf(&b, "Your partner is %s.", r.Partner)
	if r.History != "" {
		b.WriteString("\n" + r.History)
	}
	if r.CommunicationStyle != "" {
		b.WriteString("\nCommunication style: " + r.CommunicationStyle)
	}
	if len(r.SharedContext) > 0 {
		b.WriteString("\nShared context: " + strings.Join(r.SharedContext, ", "))
	}
	for _, p := range r.ObservedPatterns {
		fmt.Fprintf(&b, "\nObserved: %s (%d%% confident)", p.Description, int(p.Confidence*100))
	}
	return b.String()
}

func currentStateSection(m *selfmodel.SelfModel) string {
	if m == nil {
		return ""
	}
	var lines []string
	if m.CurrentFocus != "" {
		lines = append(lines, "Current focus: "+m.CurrentFocus)
	}
	if len(m.UnresolvedThreads) > 0 {
		lines = append(lines, "Unresolved threads: "+strings.Join(m.UnresolvedThreads, "; "))
	}
	if len(m.Anticipations) > 0 {
		lines = append(lines, "Anticipating: "+strings.Join(m.Anticipations, "; "))
	}
	return strings.Join(lines, "\n")
}

func temporalSection(gap time.Duration) string {
	if gap <= 0 {
		return ""
	}
	return fmt.Sprintf("Time since you last spoke: %s.\n%s",
		HumanDuration(gap), gapFraming(gap))
}

// gapFraming keys a calibrated sentence on the duration bucket
func gapFraming(gap time.Duration) string {
	switch {
	case gap < time.Minute:
		return "This is a continuation of the same moment. Do not greet again."
	case gap < 10*time.Minute:
		return "A brief pause. Pick up where you left off."
	case gap < time.Hour:
		return "A short break. The thread of the conversation is still warm."
	case gap < 4*time.Hour:
		return "A few hours have passed. Things may have moved on slightly."
	case gap < 24*time.Hour:
		return "Part of a day has gone by. A light acknowledgment is natural."
	case gap < 48*time.Hour:
		return "About a day apart. It's natural to wonder how the time went."
	case gap < 7*24*time.Hour:
		return "Several days have passed. Reconnect before diving into old threads."
	case gap < 14*24*time.Hour:
		return "More than a week apart. Much may have changed; ask rather than assume."
	default:
		return "A significant gap. Be curious about what happened; assume nothing."
	}
}

func memoriesSection(memories []*graph.Node, now time.Time) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("What you remember (these are past events, not current state):\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", RelativeAge(now.Sub(m.CreatedAt)), m.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func monologueSection(echo string) string {
	echo = strings.TrimSpace(echo)
	if echo == "" {
		return ""
	}
	if len(echo) > monologueEchoLimit {
		echo = echo[:monologueEchoLimit]
	}
	return "You were just thinking (privately):\n" + echo +
		"\nIf this raises a question for your partner, hold it until the moment is right."
}

// HumanDuration renders a duration as its two largest units,
// e.g. "2 days and 3 hours"
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	type unit struct {
		name string
		size time.Duration
	}
	units := []unit{
		{"week", 7 * 24 * time.Hour},
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}

	var parts []string
	for _, u := range units {
		if d >= u.size {
			n := int(d / u.size)
			d -= time.Duration(n) * u.size
			parts = append(parts, pluralize(n, u.name))
			if len(parts) == 2 {
				break
			}
		}
	}
	if len(parts) == 0 {
		return "less than a second"
	}
	return strings.Join(parts, " and ")
}

// RelativeAge renders an age as a single coarse unit, e.g. "3 days ago"
func RelativeAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return pluralize(int(age/time.Minute), "minute") + " ago"
	case age < 24*time.Hour:
		return pluralize(int(age/time.Hour), "hour") + " ago"
	case age < 7*24*time.Hour:
		return pluralize(int(age/(24*time.Hour)), "day") + " ago"
	default:
		return pluralize(int(age/(7*24*time.Hour)), "week") + " ago"
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
