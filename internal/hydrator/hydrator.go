// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package hydrator round-trips the episode graph between memory and the
// durable store on startup, shutdown and after consolidation.
package hydrator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/graph"
)

// Hydrate reads every episode and link from the store and builds the
// in-memory graph. Links whose target episode no longer exists are dropped
// with a warning rather than corrupting the graph.
func Hydrate(db *gorm.DB, log *slog.Logger) (*graph.Graph, error) {
	var episodes []database.Episode
	if err := db.Find(&episodes).Error; err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}

	g := graph.New()
	for i := range episodes {
		node, err := nodeFromRow(&episodes[i])
		if err != nil {
			log.Warn("skipping malformed episode row", "id", episodes[i].ID, "error", err)
			continue
		}
		g.AddNode(node)
	}

	var links []database.EpisodeLink
	if err := db.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to load episode links: %w", err)
	}

	dangling := 0
	for _, l := range links {
		if g.GetNode(l.ToID) == nil {
			dangling++
			continue
		}
		if !g.AddLink(l.FromID, graph.Link{TargetID: l.ToID, Strength: l.Strength, Kind: l.Kind}) {
			dangling++
		}
	}
	if dangling > 0 {
		log.Warn("dropped dangling episode links", "count", dangling)
	}

	return g, nil
}

// Persist writes the graph back as a snapshot: every node upserted first
// (foreign-key-safe), then each source node's links deleted and re-inserted.
// Both passes run in a single transaction so partial writes never land.
func Persist(g *graph.Graph, db *gorm.DB) error {
	nodes := g.GetAllNodes()

	return db.Transaction(func(tx *gorm.DB) error {
		for _, n := range nodes {
			row, err := rowFromNode(n)
			if err != nil {
				return fmt.Errorf("failed to serialize episode %s: %w", n.ID, err)
			}
			if err := tx.Save(row).Error; err != nil {
				return fmt.Errorf("failed to upsert episode %s: %w", n.ID, err)
			}
		}

		for _, n := range nodes {
			if err := tx.Where("from_id = ?", n.ID).Delete(&database.EpisodeLink{}).Error; err != nil {
				return fmt.Errorf("failed to clear links for %s: %w", n.ID, err)
			}
			for _, l := range n.Links {
				row := database.EpisodeLink{
					FromID:   n.ID,
					ToID:     l.TargetID,
					Strength: l.Strength,
					Kind:     l.Kind,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to insert link %s->%s: %w", n.ID, l.TargetID, err)
				}
			}
		}

		return nil
	})
}

func nodeFromRow(row *database.Episode) (*graph.Node, error) {
	embedding := embeddings.BlobToFloat32Slice(row.Embedding)
	if embedding == nil {
		return nil, fmt.Errorf("malformed embedding blob (%d bytes)", len(row.Embedding))
	}

	node := &graph.Node{
		ID:             row.ID,
		Summary:        row.Summary,
		Embedding:      embedding,
		Salience:       row.Salience,
		Confidence:     row.Confidence,
		CreatedAt:      row.CreatedAt,
		LastAccessedAt: row.LastAccessedAt,
		AccessCount:    row.AccessCount,
	}

	if err := unmarshalList(row.Topics, &node.Topics); err != nil {
		return nil, fmt.Errorf("malformed topics: %w", err)
	}
	if err := unmarshalList(row.Exemplars, &node.Exemplars); err != nil {
		return nil, fmt.Errorf("malformed exemplars: %w", err)
	}
	if err := unmarshalList(row.TemporalBefore, &node.TemporalBefore); err != nil {
		return nil, fmt.Errorf("malformed temporal_before: %w", err)
	}
	if err := unmarshalList(row.TemporalAfter, &node.TemporalAfter); err != nil {
		return nil, fmt.Errorf("malformed temporal_after: %w", err)
	}
	if row.Gap != "" {
		if err := json.Unmarshal([]byte(row.Gap), &node.Gap); err != nil {
			return nil, fmt.Errorf("malformed gap: %w", err)
		}
	}

	return node, nil
}

func rowFromNode(n *graph.Node) (*database.Episode, error) {
	topics, err := marshalList(n.Topics)
	if err != nil {
		return nil, err
	}
	exemplars, err := marshalList(n.Exemplars)
	if err != nil {
		return nil, err
	}
	before, err := marshalList(n.TemporalBefore)
	if err != nil {
		return nil, err
	}
	after, err := marshalList(n.TemporalAfter)
	if err != nil {
		return nil, err
	}
	gap, err := json.Marshal(n.Gap)
	if err != nil {
		return nil, err
	}

	return &database.Episode{
		ID:             n.ID,
		CreatedAt:      n.CreatedAt,
		LastAccessedAt: n.LastAccessedAt,
		AccessCount:    n.AccessCount,
		Summary:        n.Summary,
		Embedding:      embeddings.Float32SliceToBlob(n.Embedding),
		Exemplars:      exemplars,
		TemporalBefore: before,
		TemporalAfter:  after,
		Gap:            string(gap),
		Salience:       n.Salience,
		Confidence:     n.Confidence,
		Topics:         topics,
	}, nil
}

// unmarshalList parses a JSON list column, treating empty text as empty
func unmarshalList(raw string, dst interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// marshalList serializes a list column, writing empty lists as "[]"
func marshalList(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
