// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package graph implements the in-memory associative episode graph:
// a directed weighted graph over episodes with nearest-by-embedding lookup,
// spreading-activation retrieval, exponential decay and reinforcement.
//
// The graph owns its nodes; edges refer to targets by id only. All methods
// are safe for concurrent use. Model calls must never happen while holding
// a graph method open; callers batch mutations around external calls.
package graph

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Exemplar is a verbatim quote retained to anchor an abstraction against drift
type Exemplar struct {
	Quote     string    `json:"quote"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// GapInfo records the silence an episode followed
type GapInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Significance    string  `json:"significance,omitempty"`
}

// Link is a directed weighted edge to another episode
type Link struct {
	TargetID string  `json:"target_id"`
	Strength float64 `json:"strength"`
	Kind     string  `json:"kind"`
}

// Node is one episode held in the graph
type Node struct {
	ID             string
	Summary        string
	Embedding      []float32
	Salience       float64
	Confidence     float64
	Topics         []string
	Exemplars      []Exemplar
	TemporalBefore []string
	TemporalAfter  []string
	Gap            GapInfo
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
	Links          []Link
}

// clone returns a snapshot copy safe to hand to readers while the graph
// keeps mutating.
func (n *Node) clone() *Node {
	c := *n
	c.Topics = append([]string(nil), n.Topics...)
	c.Exemplars = append([]Exemplar(nil), n.Exemplars...)
	c.TemporalBefore = append([]string(nil), n.TemporalBefore...)
	c.TemporalAfter = append([]string(nil), n.TemporalAfter...)
	c.Links = append([]Link(nil), n.Links...)
	return &c
}

// Graph is the in-memory episode graph
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// New creates an empty graph
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts or replaces a node. The graph takes ownership.
func (g *Graph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
}

// GetNode returns a snapshot copy of the node, or nil if absent
func (g *Graph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return n.clone()
}

// GetAllNodes returns snapshot copies of every node, in unspecified order
func (g *Graph) GetAllNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.clone())
	}
	return out
}

// AddLink adds a directed edge from one episode to another. An existing
// edge to the same target is replaced.
func (g *Graph) AddLink(fromID string, link Link) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[fromID]
	if !ok {
		return false
	}
	for i := range n.Links {
		if n.Links[i].TargetID == link.TargetID {
			n.Links[i] = link
			return true
		}
	}
	n.Links = append(n.Links, link)
	return true
}

// GetOutLinks returns a copy of a node's outgoing links
func (g *Graph) GetOutLinks(id string) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]Link(nil), n.Links...)
}

// NodeCount returns the number of nodes in the graph
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// LinkCount returns the number of edges in the graph
func (g *Graph) LinkCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, n := range g.nodes {
		count += len(n.Links)
	}
	return count
}

// Reinforce increments a node's access count and stamps its last access.
// Both only ever move forward.
func (g *Graph) Reinforce(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reinforceLocked(id)
}

func (g *Graph) reinforceLocked(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	n.AccessCount++
	now := time.Now()
	if now.After(n.LastAccessedAt) {
		n.LastAccessedAt = now
	}
	return true
}

// Update applies fn to the live node under the write lock. Used by
// consolidation to merge a candidate into an existing episode without
// copy-out/copy-in races. Returns false if the node is absent.
func (g *Graph) Update(id string, fn func(*Node)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	fn(n)
	return true
}

// Neighbor is a nearest-by-embedding result
type Neighbor struct {
	ID         string
	Similarity float64
}

// FindNearest computes cosine similarity between the query and every node's
// embedding and returns the k highest. Ties break by higher salience, then
// lexicographic id. Linear scan; acceptable up to low tens of thousands of
// nodes.
func (g *Graph) FindNearest(query []float32, k int) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findNearestLocked(query, k)
}

func (g *Graph) findNearestLocked(query []float32, k int) []Neighbor {
	if k <= 0 || len(g.nodes) == 0 {
		return nil
	}

	type scored struct {
		id         string
		similarity float64
		salience   float64
	}
	all := make([]scored, 0, len(g.nodes))
	for id, n := range g.nodes {
		all = append(all, scored{
			id:         id,
			similarity: CosineSimilarity(query, n.Embedding),
			salience:   n.Salience,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].similarity != all[j].similarity {
			return all[i].similarity > all[j].similarity
		}
		if all[i].salience != all[j].salience {
			return all[i].salience > all[j].salience
		}
		return all[i].id < all[j].id
	})

	if len(all) > k {
		all = all[:k]
	}
	out := make([]Neighbor, len(all))
	for i, s := range all {
		out[i] = Neighbor{ID: s.id, Similarity: s.similarity}
	}
	return out
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
