// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate runs auto-migrations for all core tables
func Migrate(db *gorm.DB) error {
	models := []interface{}{
		&RawExperience{},
		&Episode{},
		&EpisodeLink{},
		&SelfModelRow{},
		&MonologueState{},
		&Gap{},
		&CircuitBreakerEvent{},
	}

	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return nil
}

// CreateIndexes creates secondary indexes not covered by model tags
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name    string
		table   string
		columns string
	}{
		{"idx_raw_experiences_processed_ts", "raw_experiences", "processed, timestamp"},
		{"idx_episode_links_to", "episode_links", "to_id"},
	}

	for _, idx := range indexes {
		hasIndex := db.Migrator().HasIndex(idx.table, idx.name)
		if !hasIndex {
			sql := "CREATE INDEX IF NOT EXISTS " + idx.name + " ON " + idx.table + " (" + idx.columns + ")"
			if err := db.Exec(sql).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
