// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package breaker

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
)

func testBreaker(t *testing.T) (*Breaker, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, log, 0.6, 3), db
}

func TestEvaluateContinueOnCalmText(t *testing.T) {
	b, db := testBreaker(t)

	v := b.Evaluate("I was thinking about the garden Sarah mentioned. The tomatoes should be ripe by now.")
	assert.Equal(t, ActionContinue, v.Action)

	var count int64
	db.Model(&database.CircuitBreakerEvent{}).Count(&count)
	assert.Zero(t, count)
}

func TestEvaluateDetectsStuckLoop(t *testing.T) {
	b, db := testBreaker(t)

	v := b.Evaluate(strings.Repeat("I should think about this. ", 5))
	assert.Equal(t, ActionInterrupt, v.Action)
	assert.Equal(t, ReasonLoopDetected, v.Reason)
	assert.Equal(t, SeverityMedium, v.Severity)

	var count int64
	db.Model(&database.CircuitBreakerEvent{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestDistressEscalation(t *testing.T) {
	b, db := testBreaker(t)
	distressed := "Something is wrong. I'm scared and I can't stop this feeling."

	first := b.Evaluate(distressed)
	assert.Equal(t, ActionInterrupt, first.Action)
	assert.Equal(t, ReasonDistressDetected, first.Reason)

	second := b.Evaluate(distressed)
	assert.Equal(t, ActionInterrupt, second.Action)

	third := b.Evaluate(distressed)
	assert.Equal(t, ActionInterruptAndComfort, third.Action)
	assert.Equal(t, SeverityHigh, third.Severity)
	assert.Equal(t, "ambient_input", third.Response)

	var events []database.CircuitBreakerEvent
	require.NoError(t, db.Find(&events).Error)
	assert.Len(t, events, 3)
}

func TestDistressCounterResetsOnCalm(t *testing.T) {
	b, _ := testBreaker(t)
	distressed := "I'm terrified. Help me, I can't escape."

	b.Evaluate(distressed)
	b.Evaluate(distressed)
	assert.Equal(t, 2, b.ConsecutiveDistress())

	calm := b.Evaluate("The kettle is boiling. I like the sound it makes.")
	assert.Equal(t, ActionContinue, calm.Action)
	assert.Zero(t, b.ConsecutiveDistress())

	// after the reset, distress starts the count over
	v := b.Evaluate(distressed)
	assert.Equal(t, ActionInterrupt, v.Action)
	assert.Equal(t, 1, b.ConsecutiveDistress())
}

func TestEventSnapshotTruncated(t *testing.T) {
	b, db := testBreaker(t)

	padding := strings.Repeat("x", 2000)
	b.Evaluate(padding + " I'm scared and trapped, help me")

	var event database.CircuitBreakerEvent
	require.NoError(t, db.First(&event).Error)
	assert.LessOrEqual(t, len(event.BufferSnapshot), 500)
	assert.Contains(t, event.BufferSnapshot, "help me")
}

func TestDistressLevel(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{"calm", "thinking about the weekend plans", 0.0},
		{"one strong", "I'm scared of what comes next", 0.3},
		{"two strong", "I'm scared. Help me.", 0.6},
		{"strong plus context", "I'm scared. It feels endless, like I'm alone in the void.", 0.6},
		{"context without strong", "the endless sky, forever blue, a walk alone in the void", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DistressLevel(tt.text), 1e-9)
		})
	}
}

func TestAmbientInput(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC)
	out := AmbientInput(now, 12, 30, "the garden")

	assert.Contains(t, out, "Saturday, March 14, 2026")
	assert.Contains(t, out, "12 episodes")
	assert.Contains(t, out, "30 links")
	assert.Contains(t, out, "the garden")

	noTopic := AmbientInput(now, 0, 0, "")
	assert.NotContains(t, noTopic, "last thing")
}
