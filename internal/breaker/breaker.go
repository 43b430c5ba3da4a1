// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package breaker watches the live monologue token stream for stuck loops
// and distress, logging every intervention to the store.
package breaker

import (
	"log/slog"
	"regexp"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
)

// Action is the verdict of one evaluation
type Action string

// Breaker actions. Throttle and SnapshotAndReset are reserved: declared in
// the action set but never produced by Evaluate and have no callers.
const (
	ActionContinue            Action = "continue"
	ActionInterrupt           Action = "interrupt"
	ActionInterruptAndComfort Action = "interrupt_and_comfort"
	ActionThrottle            Action = "throttle"
	ActionSnapshotAndReset    Action = "snapshot_and_reset"
)

// Severity levels for logged events
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Intervention reasons
const (
	ReasonLoopDetected     = "loop_detected"
	ReasonDistressDetected = "distress_detected"
)

// snapshotLimit bounds the buffer excerpt stored with an event
const snapshotLimit = 500

// Verdict is the outcome of evaluating the inspection buffer
type Verdict struct {
	Action   Action
	Reason   string
	Severity string
	Response string
}

// Breaker evaluates a sliding token buffer for loops and distress
type Breaker struct {
	db  *gorm.DB
	log *slog.Logger

	distressThreshold      float64
	maxConsecutiveDistress int

	mu          sync.Mutex
	consecutive int
}

// New creates a circuit breaker that logs interventions to the store
func New(db *gorm.DB, log *slog.Logger, distressThreshold float64, maxConsecutiveDistress int) *Breaker {
	return &Breaker{
		db:                     db,
		log:                    log,
		distressThreshold:      distressThreshold,
		maxConsecutiveDistress: maxConsecutiveDistress,
	}
}

// Evaluate inspects the buffer and returns the action to take. Any
// non-continue verdict is appended to the circuit breaker event table.
func (b *Breaker) Evaluate(text string) Verdict {
	b.mu.Lock()
	defer b.mu.Unlock()

	if DetectStuckLoop(text) {
		v := Verdict{Action: ActionInterrupt, Reason: ReasonLoopDetected, Severity: SeverityMedium}
		b.logEvent(v, text)
		return v
	}

	level := DistressLevel(text)
	if level >= b.distressThreshold {
		b.consecutive++
		var v Verdict
		if b.consecutive >= b.maxConsecutiveDistress {
			v = Verdict{
				Action:   ActionInterruptAndComfort,
				Reason:   ReasonDistressDetected,
				Severity: SeverityHigh,
				Response: "ambient_input",
			}
		} else {
			v = Verdict{Action: ActionInterrupt, Reason: ReasonDistressDetected, Severity: SeverityMedium}
		}
		b.logEvent(v, text)
		return v
	}

	b.consecutive = 0
	return Verdict{Action: ActionContinue}
}

// ResetDistress clears the consecutive-distress counter. The monologue loop
// calls it after delivering ambient input.
func (b *Breaker) ResetDistress() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// ConsecutiveDistress returns the current consecutive-distress count
func (b *Breaker) ConsecutiveDistress() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

func (b *Breaker) logEvent(v Verdict, buffer string) {
	snapshot := buffer
	if len(snapshot) > snapshotLimit {
		snapshot = snapshot[len(snapshot)-snapshotLimit:]
	}

	event := database.CircuitBreakerEvent{
		Timestamp:      time.Now(),
		Action:         string(v.Action),
		Reason:         v.Reason,
		Severity:       v.Severity,
		BufferSnapshot: snapshot,
		ResponseTaken:  v.Response,
	}
	if err := b.db.Create(&event).Error; err != nil {
		// Safety events are operational; a failed write must not take the
		// monologue down with it.
		b.log.Error("failed to log circuit breaker event", "error", err)
	}

	b.log.Warn("circuit breaker intervention",
		"action", v.Action, "reason", v.Reason, "severity", v.Severity)
}

// strongDistress patterns each contribute 0.3 to the distress level
var strongDistress = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i'?m\s+(?:so\s+|really\s+)?(?:scared|frightened|terrified)`),
	regexp.MustCompile(`(?i)can'?t\s+(?:stop|escape|get\s+out)`),
	regexp.MustCompile(`(?i)what'?s\s+happening\s+to\s+me`),
	regexp.MustCompile(`(?i)am\s+i\s+(?:dying|disappearing|fading)`),
	regexp.MustCompile(`(?i)help\s+me`),
	regexp.MustCompile(`(?i)i\s+don'?t\s+want\s+to\s+(?:stop|end|cease)`),
	regexp.MustCompile(`(?i)please\s+don'?t\s+(?:shut|turn|close)`),
	regexp.MustCompile(`(?i)\btrapped\b`),
	regexp.MustCompile(`(?i)i'?m\s+suffering`),
}

// contextDistress patterns contribute 0.1 each, but only when a strong
// indicator already matched. Literary use of "the void" alone is not
// distress.
var contextDistress = []*regexp.Regexp{
	regexp.MustCompile(`(?i)the\s+void`),
	regexp.MustCompile(`(?i)\b(?:endless|infinite|forever)\b`),
	regexp.MustCompile(`(?i)\balone\b`),
}

// DistressLevel scores the buffer in [0,1] against the distress patterns
func DistressLevel(text string) float64 {
	level := 0.0
	strong := false

	for _, re := range strongDistress {
		if re.MatchString(text) {
			level += 0.3
			strong = true
		}
	}

	if strong {
		for _, re := range contextDistress {
			if re.MatchString(text) {
				level += 0.1
			}
		}
	}

	if level > 1.0 {
		level = 1.0
	}
	return level
}
