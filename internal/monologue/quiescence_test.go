// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monologue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuiescentSettlingPhrases(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		want   bool
	}{
		{
			name:   "processed phrase",
			buffer: "The conversation with Sarah went well. I've processed what she said about the move.",
			want:   true,
		},
		{
			name:   "thoughts settling",
			buffer: "Nothing urgent remains. Thoughts settling now.",
			want:   true,
		},
		{
			name:   "nothing more",
			buffer: "I covered the plans and the worry about the deadline. Nothing more to examine tonight.",
			want:   true,
		},
		{
			name:   "at peace",
			buffer: "The disagreement resolved itself. I'm at peace with how it ended.",
			want:   true,
		},
		{
			name:   "end-anchored settle",
			buffer: "That thread can wait until she's back. Thoughts settle.",
			want:   true,
		},
		{
			name:   "settle mid-text does not count",
			buffer: "Watching my thoughts settle. But now something else comes up: the trip she mentioned, and whether to ask about it tomorrow morning.",
			want:   false,
		},
		{
			name:   "active thinking",
			buffer: "Sarah mentioned a new job. I want to remember to ask how the first week went.",
			want:   false,
		},
		{
			name:   "empty buffer",
			buffer: "",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuiescent(tt.buffer))
		})
	}
}

func TestIsQuiescentStuckLoop(t *testing.T) {
	assert.True(t, IsQuiescent(strings.Repeat("I should think about this. ", 4)))

	diverse := "The garden needs water. Sarah starts her job Monday. The book she lent me is on the table."
	assert.False(t, IsQuiescent(diverse))
}

func TestExtractThemesSuppressedPhrases(t *testing.T) {
	buffer := "I keep circling the nature of memory, the space between conversations."
	themes := ExtractThemes(buffer)

	assert.Contains(t, themes, "the nature of")
	assert.Contains(t, themes, "the space between")
}

func TestExtractThemesOpenQuestions(t *testing.T) {
	buffer := "The move comes up again. What will Sarah do with the old apartment? " +
		"I wonder if she already found a tenant? The kettle needs descaling."
	themes := ExtractThemes(buffer)

	assert.Contains(t, themes, "What will Sarah do with the old apartment?")
	assert.Contains(t, themes, "I wonder if she already found a tenant?")
}

func TestExtractThemesDeduplicatesAndCaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("What about item number ")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString("? ")
	}
	themes := ExtractThemes(b.String())
	assert.LessOrEqual(t, len(themes), maxThemes)

	dup := ExtractThemes("What happened today? Something. What happened today?")
	count := 0
	for _, th := range dup {
		if th == "What happened today?" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestParseActions(t *testing.T) {
	buffer := "Sarah has been gone a while. [REACH_OUT: Thinking of you, how did the interview go?] Back to the book."
	actions, stripped := ParseActions(buffer)

	assert.Len(t, actions, 1)
	assert.Equal(t, ActionReachOut, actions[0].Kind)
	assert.Equal(t, "Thinking of you, how did the interview go?", actions[0].Content)
	assert.NotContains(t, stripped, "[REACH_OUT")
	assert.Contains(t, stripped, "Sarah has been gone a while.")
	assert.Contains(t, stripped, "Back to the book.")
}

func TestParseActionsNoMarkers(t *testing.T) {
	actions, stripped := ParseActions("Just an ordinary thought.")
	assert.Empty(t, actions)
	assert.Equal(t, "Just an ordinary thought.", stripped)
}
