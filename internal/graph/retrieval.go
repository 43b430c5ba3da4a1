// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"sort"
)

// maxEntryPoints bounds the nearest-neighbor seeds for retrieval
const maxEntryPoints = 5

// Retrieved is a scored retrieval result
type Retrieved struct {
	Node       *Node
	Activation float64
}

// Retrieve runs the associative retrieval pipeline: cosine entry points,
// seeded with similarity*salience, spreading activation, threshold filter,
// truncation and reinforcement. Returned nodes are snapshot copies ordered
// by activation descending.
//
// Pure vector search would miss an episode weakly similar to the query but
// strongly linked to several activated ones; the graph carries that
// associative structure.
func (g *Graph) Retrieve(query []float32, limit, maxHops int, decayPerHop, activationThreshold float64) []Retrieved {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.nodes) == 0 || limit <= 0 {
		return nil
	}

	entries := g.findNearestLocked(query, maxEntryPoints)
	if len(entries) == 0 {
		return nil
	}

	seeds := make(map[string]float64, len(entries))
	for _, e := range entries {
		n := g.nodes[e.ID]
		seeds[e.ID] = e.Similarity * n.Salience
	}

	activation := g.spreadActivationLocked(seeds, maxHops, decayPerHop)

	type scored struct {
		id     string
		energy float64
	}
	kept := make([]scored, 0, len(activation))
	for id, energy := range activation {
		if energy < activationThreshold {
			continue
		}
		kept = append(kept, scored{id: id, energy: energy})
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].energy != kept[j].energy {
			return kept[i].energy > kept[j].energy
		}
		return kept[i].id < kept[j].id
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}

	results := make([]Retrieved, 0, len(kept))
	for _, s := range kept {
		g.reinforceLocked(s.id)
		results = append(results, Retrieved{
			Node:       g.nodes[s.id].clone(),
			Activation: s.energy,
		})
	}

	return results
}
