// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package experience

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
)

// LoadUnprocessed returns every raw experience not yet consumed by
// consolidation, oldest first.
func LoadUnprocessed(db *gorm.DB) ([]database.RawExperience, error) {
	var experiences []database.RawExperience
	err := db.Where("processed = ?", false).
		Order("timestamp ASC").
		Find(&experiences).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed experiences: %w", err)
	}
	return experiences, nil
}

// RecentUnprocessed returns up to limit unprocessed experiences newer than
// the cutoff, newest first. The monologue loop feeds on these.
func RecentUnprocessed(db *gorm.DB, limit int, since time.Time) ([]database.RawExperience, error) {
	var experiences []database.RawExperience
	err := db.Where("processed = ? AND timestamp > ?", false, since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&experiences).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent experiences: %w", err)
	}
	return experiences, nil
}

// MarkProcessed flags the given experiences as consumed
func MarkProcessed(db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.Model(&database.RawExperience{}).
		Where("id IN ?", ids).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark experiences processed: %w", err)
	}
	return nil
}

// Counts returns the total and unprocessed raw experience counts
func Counts(db *gorm.DB) (total, unprocessed int64, err error) {
	if err = db.Model(&database.RawExperience{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count experiences: %w", err)
	}
	err = db.Model(&database.RawExperience{}).Where("processed = ?", false).Count(&unprocessed).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count unprocessed experiences: %w", err)
	}
	return total, unprocessed, nil
}
