// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package experience writes raw conversation, monologue and external
// fragments to the durable store with an embedding and an initial salience.
package experience

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
)

// ErrEmbedFailure indicates the embedding call failed. The encoder never
// swallows it; callers decide whether to degrade.
var ErrEmbedFailure = errors.New("embed failure")

// Metadata carries loose context attached to a raw experience
type Metadata struct {
	ConversationID     string   `json:"conversation_id,omitempty"`
	TurnCount          int      `json:"turn_count,omitempty"`
	Topics             []string `json:"topics,omitempty"`
	UnresolvedTensions []string `json:"unresolved_tensions,omitempty"`
}

// Encoder writes raw experiences to the store
type Encoder struct {
	db    *gorm.DB
	embed embeddings.Client
}

// NewEncoder creates an encoder over the given store and embedding client
func NewEncoder(db *gorm.DB, embed embeddings.Client) *Encoder {
	return &Encoder{db: db, embed: embed}
}

// Encode embeds the text, scores its initial salience and appends it to the
// raw experience table, unprocessed.
func (e *Encoder) Encode(text, kind string, meta *Metadata) (*database.RawExperience, error) {
	if !database.IsValidExperienceKind(kind) {
		return nil, fmt.Errorf("invalid experience kind: %s", kind)
	}

	vector, err := e.embed.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedFailure, err)
	}

	metaJSON := ""
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = string(data)
	}

	exp := &database.RawExperience{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Timestamp: time.Now(),
		Content:   text,
		Embedding: embeddings.Float32SliceToBlob(vector),
		Salience:  InitialSalience(text),
		Processed: false,
		Metadata:  metaJSON,
	}

	if err := e.db.Create(exp).Error; err != nil {
		return nil, fmt.Errorf("failed to store raw experience: %w", err)
	}

	return exp, nil
}

// InitialSalience scores a text's starting importance from its length and
// punctuation energy, capped at 1.0.
func InitialSalience(text string) float64 {
	salience := 0.3

	words := len(strings.Fields(text))
	if words > 10 {
		salience += 0.1
	}
	if words > 50 {
		salience += 0.1
	}
	if words > 100 {
		salience += 0.1
	}

	questions := float64(strings.Count(text, "?")) * 0.05
	if questions > 0.15 {
		questions = 0.15
	}
	exclamations := float64(strings.Count(text, "!")) * 0.03
	if exclamations > 0.1 {
		exclamations = 0.1
	}
	salience += questions + exclamations

	if salience > 1.0 {
		salience = 1.0
	}
	return salience
}
