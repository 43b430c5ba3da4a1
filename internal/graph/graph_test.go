// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string, embedding []float32, salience float64) *Node {
	return &Node{
		ID:             id,
		Summary:        "episode " + id,
		Embedding:      embedding,
		Salience:       salience,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
}

func TestAddAndGetNode(t *testing.T) {
	g := New()
	g.AddNode(testNode("a", []float32{1, 0, 0}, 0.5))

	got := g.GetNode("a")
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Nil(t, g.GetNode("missing"))
	assert.Equal(t, 1, g.NodeCount())
}

func TestGetNodeReturnsSnapshot(t *testing.T) {
	g := New()
	g.AddNode(testNode("a", []float32{1, 0, 0}, 0.5))

	snap := g.GetNode("a")
	snap.Summary = "mutated"
	snap.Topics = append(snap.Topics, "new")

	fresh := g.GetNode("a")
	assert.Equal(t, "episode a", fresh.Summary)
	assert.Empty(t, fresh.Topics)
}

func TestAddLinkReplacesSameTarget(t *testing.T) {
	g := New()
	g.AddNode(testNode("a", []float32{1, 0, 0}, 0.5))
	g.AddNode(testNode("b", []float32{0, 1, 0}, 0.5))

	require.True(t, g.AddLink("a", Link{TargetID: "b", Strength: 0.3, Kind: "thematic"}))
	require.True(t, g.AddLink("a", Link{TargetID: "b", Strength: 0.8, Kind: "causal"}))

	links := g.GetOutLinks("a")
	require.Len(t, links, 1)
	assert.Equal(t, 0.8, links[0].Strength)
	assert.Equal(t, "causal", links[0].Kind)
	assert.Equal(t, 1, g.LinkCount())
}

func TestAddLinkMissingSource(t *testing.T) {
	g := New()
	assert.False(t, g.AddLink("ghost", Link{TargetID: "b", Strength: 0.5, Kind: "thematic"}))
}

func TestReinforceMonotonic(t *testing.T) {
	g := New()
	n := testNode("a", []float32{1, 0, 0}, 0.5)
	n.LastAccessedAt = time.Now().Add(-time.Hour)
	g.AddNode(n)

	before := g.GetNode("a")
	require.True(t, g.Reinforce("a"))
	after := g.GetNode("a")

	assert.Equal(t, before.AccessCount+1, after.AccessCount)
	assert.False(t, after.LastAccessedAt.Before(before.LastAccessedAt))

	// repeated reinforcement never moves either field backwards
	for i := 0; i < 5; i++ {
		prev := g.GetNode("a")
		g.Reinforce("a")
		cur := g.GetNode("a")
		assert.GreaterOrEqual(t, cur.AccessCount, prev.AccessCount)
		assert.False(t, cur.LastAccessedAt.Before(prev.LastAccessedAt))
	}

	assert.False(t, g.Reinforce("missing"))
}

func TestFindNearestOrdering(t *testing.T) {
	g := New()
	g.AddNode(testNode("exact", []float32{1, 0, 0}, 0.5))
	g.AddNode(testNode("close", []float32{0.9, 0.1, 0}, 0.5))
	g.AddNode(testNode("far", []float32{0, 0, 1}, 0.5))

	got := g.FindNearest([]float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].ID)
	assert.Equal(t, "close", got[1].ID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
}

func TestFindNearestTieBreaks(t *testing.T) {
	g := New()
	// identical embeddings: higher salience wins, then lexicographic id
	g.AddNode(testNode("b", []float32{1, 0, 0}, 0.4))
	g.AddNode(testNode("a", []float32{1, 0, 0}, 0.4))
	g.AddNode(testNode("c", []float32{1, 0, 0}, 0.9))

	got := g.FindNearest([]float32{1, 0, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "b", got[2].ID)
}

func TestFindNearestEmptyGraph(t *testing.T) {
	g := New()
	assert.Nil(t, g.FindNearest([]float32{1, 0, 0}, 5))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"mismatched dims", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
