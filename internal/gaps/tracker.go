// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gaps records inter-conversation silences. A gap opens when a
// conversation ends and closes when the next one starts.
package gaps

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
)

// Tracker opens and closes gap records in the store
type Tracker struct {
	db *gorm.DB
}

// NewTracker creates a gap tracker over the store
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Open starts a gap for the conversation that just ended
func (t *Tracker) Open(conversationID string) (*database.Gap, error) {
	gap := &database.Gap{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		StartedAt:      time.Now(),
	}
	if err := t.db.Create(gap).Error; err != nil {
		return nil, fmt.Errorf("failed to open gap: %w", err)
	}
	return gap, nil
}

// OpenOrRestart marks the start of a silence after an exchange. If a gap
// is already open it is restarted in place, so at most one gap is open at
// a time and its start is always the end of the most recent exchange.
func (t *Tracker) OpenOrRestart(conversationID string) (*database.Gap, error) {
	var gap database.Gap
	err := t.db.Where("ended_at IS NULL").Order("started_at DESC").First(&gap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t.Open(conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open gap: %w", err)
	}

	gap.ConversationID = conversationID
	gap.StartedAt = time.Now()
	if err := t.db.Save(&gap).Error; err != nil {
		return nil, fmt.Errorf("failed to restart gap: %w", err)
	}
	return &gap, nil
}

// CloseLatest ends the most recent open gap and returns its duration.
// Returns zero without error when no gap is open (first conversation ever).
// Negative durations from clock jumps clamp to zero.
func (t *Tracker) CloseLatest() (time.Duration, error) {
	var gap database.Gap
	err := t.db.Where("ended_at IS NULL").Order("started_at DESC").First(&gap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find open gap: %w", err)
	}

	now := time.Now()
	duration := now.Sub(gap.StartedAt)
	if duration < 0 {
		duration = 0
	}
	seconds := duration.Seconds()

	gap.EndedAt = &now
	gap.DurationSeconds = &seconds
	if err := t.db.Save(&gap).Error; err != nil {
		return 0, fmt.Errorf("failed to close gap: %w", err)
	}

	return duration, nil
}

// LastClosed returns the most recently closed gap, or nil if none exists
func (t *Tracker) LastClosed() (*database.Gap, error) {
	var gap database.Gap
	err := t.db.Where("ended_at IS NOT NULL").Order("started_at DESC").First(&gap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last gap: %w", err)
	}
	return &gap, nil
}
