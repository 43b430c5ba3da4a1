// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"math"
	"time"
)

// SpreadActivation propagates energy from the seed nodes along outgoing
// links for up to maxHops hops. Each hop, every (node, energy) pair in the
// current frontier contributes energy*strength*decayPerHop to each link
// target; contributions accumulate across paths, so nodes reached by
// multiple routes end up hotter. The returned map includes the seeds at
// their initial energy plus everything reached.
func (g *Graph) SpreadActivation(seeds map[string]float64, maxHops int, decayPerHop float64) map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.spreadActivationLocked(seeds, maxHops, decayPerHop)
}

func (g *Graph) spreadActivationLocked(seeds map[string]float64, maxHops int, decayPerHop float64) map[string]float64 {
	activation := make(map[string]float64, len(seeds))
	frontier := make(map[string]float64, len(seeds))
	for id, energy := range seeds {
		activation[id] = energy
		frontier[id] = energy
	}

	for hop := 0; hop < maxHops; hop++ {
		next := make(map[string]float64)
		for id, energy := range frontier {
			n, ok := g.nodes[id]
			if !ok {
				continue
			}
			for _, link := range n.Links {
				if _, exists := g.nodes[link.TargetID]; !exists {
					continue
				}
				next[link.TargetID] += energy * link.Strength * decayPerHop
			}
		}
		if len(next) == 0 {
			break
		}
		for id, energy := range next {
			activation[id] += energy
		}
		frontier = next
	}

	return activation
}

// ApplyDecay exponentially decays every node's salience and every link's
// strength based on days since the node was last accessed, flooring at the
// configured minimums. Decay never increases anything; running it twice in
// one day is monotonically non-increasing and safe.
func (g *Graph) ApplyDecay(halfLifeDays, minimumSalience, minimumLinkStrength float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for _, n := range g.nodes {
		days := now.Sub(n.LastAccessedAt).Hours() / 24
		if days < 0 {
			// Clock jumped backwards; relative durations clamp to zero
			days = 0
		}
		factor := math.Pow(0.5, days/halfLifeDays)

		n.Salience = math.Max(n.Salience*factor, minimumSalience)
		for i := range n.Links {
			n.Links[i].Strength = math.Max(n.Links[i].Strength*factor, minimumLinkStrength)
		}
	}
}
