// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package selfmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
)

// singletonID is the fixed primary key of the self-model row
const singletonID = 1

// Manager serializes every self-model write as read-modify-write under an
// exclusive lock, so the conversation handler and the consolidation engine
// never clobber each other's updates.
type Manager struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewManager creates a self-model manager over the store. A blank model row
// is created if the store has none.
func NewManager(db *gorm.DB) (*Manager, error) {
	m := &Manager{db: db}

	var row database.SelfModelRow
	err := db.First(&row, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		blank := &SelfModel{UpdatedAt: time.Now()}
		if err := m.save(blank); err != nil {
			return nil, fmt.Errorf("failed to create blank self-model: %w", err)
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load self-model: %w", err)
	}

	return m, nil
}

// Current returns a snapshot of the self-model
func (m *Manager) Current() (*SelfModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, err := m.load()
	if err != nil {
		return nil, err
	}
	return model.clone(), nil
}

// ApplyUpdates merges a consolidation delta into the model. The model is
// reloaded from the store under the lock first, so partner-name detection
// or any other concurrent write is never lost. Values and tendencies are
// deduplicated sets; applying the same delta twice yields the same model.
func (m *Manager) ApplyUpdates(updates *Updates) (*SelfModel, error) {
	return m.Mutate(func(model *SelfModel) {
		if updates.CurrentFocus != "" {
			model.CurrentFocus = updates.CurrentFocus
		}
		if updates.NewTendency != "" {
			model.Tendencies = dedupAppend(model.Tendencies, updates.NewTendency)
		}
		if updates.NewValue != "" {
			model.Values = dedupAppend(model.Values, updates.NewValue)
		}
		if updates.NarrativeUpdate != "" {
			// The abstraction model produces a cumulative identity description;
			// replacement is the contract.
			model.Narrative = updates.NarrativeUpdate
		}
	})
}

// SetPartnerName records the detected partner identifier. Detection sets it
// at most once; a second detection is a no-op and returns false.
func (m *Manager) SetPartnerName(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, err := m.load()
	if err != nil {
		return false, err
	}
	if model.Relationship.Partner != "" {
		return false, nil
	}

	model.Relationship.Partner = name
	model.UpdatedAt = time.Now()
	if err := m.save(model); err != nil {
		return false, err
	}
	return true, nil
}

// RenamePartner explicitly replaces the partner identifier
func (m *Manager) RenamePartner(name string) error {
	_, err := m.Mutate(func(model *SelfModel) {
		model.Relationship.Partner = name
	})
	return err
}

// Mutate applies fn to the model under the lock as one read-modify-write.
// ApplyUpdates and RenamePartner are built on it.
func (m *Manager) Mutate(fn func(*SelfModel)) (*SelfModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, err := m.load()
	if err != nil {
		return nil, err
	}
	fn(model)
	model.UpdatedAt = time.Now()
	if err := m.save(model); err != nil {
		return nil, err
	}
	return model.clone(), nil
}

func (m *Manager) load() (*SelfModel, error) {
	var row database.SelfModelRow
	if err := m.db.First(&row, singletonID).Error; err != nil {
		return nil, fmt.Errorf("failed to load self-model: %w", err)
	}
	return modelFromRow(&row)
}

func (m *Manager) save(model *SelfModel) error {
	row, err := rowFromModel(model)
	if err != nil {
		return err
	}
	if err := m.db.Save(row).Error; err != nil {
		return fmt.Errorf("failed to save self-model: %w", err)
	}
	return nil
}

// dedupAppend appends item to the list unless an equivalent entry exists.
// Comparison is case-insensitive on trimmed text.
func dedupAppend(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(strings.TrimSpace(existing), item) {
			return list
		}
	}
	return append(list, item)
}

func modelFromRow(row *database.SelfModelRow) (*SelfModel, error) {
	model := &SelfModel{
		Narrative:    row.Narrative,
		CurrentFocus: row.CurrentFocus,
		UpdatedAt:    row.UpdatedAt,
	}

	fields := []struct {
		raw string
		dst interface{}
	}{
		{row.Values, &model.Values},
		{row.Tendencies, &model.Tendencies},
		{row.Relationship, &model.Relationship},
		{row.Strengths, &model.Strengths},
		{row.Limitations, &model.Limitations},
		{row.UnresolvedThreads, &model.UnresolvedThreads},
		{row.Anticipations, &model.Anticipations},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("malformed self-model field: %w", err)
		}
	}

	return model, nil
}

func rowFromModel(model *SelfModel) (*database.SelfModelRow, error) {
	row := &database.SelfModelRow{
		ID:           singletonID,
		Narrative:    model.Narrative,
		CurrentFocus: model.CurrentFocus,
		UpdatedAt:    model.UpdatedAt,
	}

	fields := []struct {
		src interface{}
		dst *string
	}{
		{model.Values, &row.Values},
		{model.Tendencies, &row.Tendencies},
		{model.Relationship, &row.Relationship},
		{model.Strengths, &row.Strengths},
		{model.Limitations, &row.Limitations},
		{model.UnresolvedThreads, &row.UnresolvedThreads},
		{model.Anticipations, &row.Anticipations},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal self-model field: %w", err)
		}
		*f.dst = string(data)
	}

	return row, nil
}
