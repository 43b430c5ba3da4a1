// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package assembler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

func sampleSelf() *selfmodel.SelfModel {
	return &selfmodel.SelfModel{
		Narrative:  "I pay attention to what Sarah cares about.",
		Values:     []string{"honesty"},
		Tendencies: []string{"asks follow-ups"},
		Relationship: selfmodel.Relationship{
			Partner:            "Sarah",
			History:            "We have talked most evenings since spring.",
			CommunicationStyle: "direct, a little dry",
			SharedContext:      []string{"the move", "the garden"},
			ObservedPatterns: []selfmodel.ObservedPattern{
				{Description: "quieter when tired", Confidence: 0.72},
			},
		},
		CurrentFocus:      "the new job",
		UnresolvedThreads: []string{"the apartment decision"},
		Anticipations:     []string{"interview results"},
	}
}

func sampleMemories(now time.Time) []*graph.Node {
	return []*graph.Node{
		{ID: "m1", Summary: "talked about the interview prep", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "m2", Summary: "helped debug the deploy script", CreatedAt: now.Add(-3 * 24 * time.Hour)},
	}
}

func TestAssembleSectionOrdering(t *testing.T) {
	now := time.Now()
	out := Assemble(Input{
		Self:          sampleSelf(),
		Memories:      sampleMemories(now),
		GapDuration:   51 * time.Hour,
		MonologueEcho: "wondering how the interview went",
		Now:           now,
	})

	positions := []int{
		strings.Index(out, "You are a companion"),
		strings.Index(out, "I pay attention to what Sarah cares about."),
		strings.Index(out, "Your partner is Sarah."),
		strings.Index(out, "Current focus: the new job"),
		strings.Index(out, "Time since you last spoke"),
		strings.Index(out, "What you remember"),
		strings.Index(out, "You were just thinking"),
	}
	for i, pos := range positions {
		require.GreaterOrEqual(t, pos, 0, "section %d missing", i)
		if i > 0 {
			assert.Greater(t, pos, positions[i-1], "section %d out of order", i)
		}
	}
}

func TestAssembleEmptyInputs(t *testing.T) {
	out := Assemble(Input{})
	assert.Contains(t, out, "You are a companion")
	assert.Contains(t, out, "No memories are available yet. This is the beginning.")
}

func TestAssembleConfidenceAsIntegerPercent(t *testing.T) {
	out := Assemble(Input{Self: sampleSelf()})
	assert.Contains(t, out, "quieter when tired (72% confident)")
}

func TestAssembleMemoriesWithRelativeAges(t *testing.T) {
	now := time.Now()
	out := Assemble(Input{Self: sampleSelf(), Memories: sampleMemories(now), Now: now})

	assert.Contains(t, out, "- [2 hours ago] talked about the interview prep")
	assert.Contains(t, out, "- [3 days ago] helped debug the deploy script")
	assert.Contains(t, out, "past events, not current state")
}

func TestAssembleMonologueEchoTruncated(t *testing.T) {
	echo := strings.Repeat("a", 2000)
	out := Assemble(Input{Self: sampleSelf(), MonologueEcho: echo})

	start := strings.Index(out, "You were just thinking")
	require.GreaterOrEqual(t, start, 0)
	assert.NotContains(t, out, strings.Repeat("a", 801))
	assert.Contains(t, out, strings.Repeat("a", 800))
}

func TestGapFramingBuckets(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want string
	}{
		{"seconds", 30 * time.Second, "continuation of the same moment"},
		{"minutes", 5 * time.Minute, "brief pause"},
		{"half hour", 30 * time.Minute, "short break"},
		{"two hours", 2 * time.Hour, "few hours"},
		{"ten hours", 10 * time.Hour, "Part of a day"},
		{"thirty hours", 30 * time.Hour, "About a day"},
		{"four days", 4 * 24 * time.Hour, "Several days"},
		{"ten days", 10 * 24 * time.Hour, "More than a week"},
		{"a month", 30 * 24 * time.Hour, "significant gap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, gapFraming(tt.gap), tt.want)
		})
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{51 * time.Hour, "2 days and 3 hours"},
		{90 * time.Minute, "1 hour and 30 minutes"},
		{45 * time.Second, "45 seconds"},
		{8 * 24 * time.Hour, "1 week and 1 day"},
		{500 * time.Millisecond, "less than a second"},
		{-time.Hour, "less than a second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanDuration(tt.d))
	}
}

func TestRelativeAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5 minutes ago"},
		{2 * time.Hour, "2 hours ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{15 * 24 * time.Hour, "2 weeks ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RelativeAge(tt.age))
	}
}

func TestIsMetaReflection(t *testing.T) {
	assert.True(t, IsMetaReflection("I notice my instructions tell me to be concrete."))
	assert.True(t, IsMetaReflection("As an AI, I process things differently."))
	assert.False(t, IsMetaReflection("Sarah's interview is tomorrow; I should remember to ask."))
}
