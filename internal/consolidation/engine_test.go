// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package consolidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

func testEngine(t *testing.T, g *graph.Graph, chat llm.Chat, embed embeddings.Client) (*Engine, *gorm.DB, *selfmodel.Manager) {
	t.Helper()
	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	self, err := selfmodel.NewManager(db)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(db, g, chat, embed, self, log, Options{
		MergeThreshold:      0.85,
		HalfLifeDays:        7,
		MinimumSalience:     0.05,
		MinimumLinkStrength: 0.05,
	})
	return e, db, self
}

func seedRaws(t *testing.T, db *gorm.DB, embed embeddings.Client, contents ...string) {
	t.Helper()
	encoder := experience.NewEncoder(db, embed)
	for _, c := range contents {
		_, err := encoder.Encode(c, database.ExperienceKindConversation, nil)
		require.NoError(t, err)
	}
}

func TestRunInsertsAbstractedEpisode(t *testing.T) {
	g := graph.New()
	embed := &embeddings.MockClient{
		EmbedFunc: func(text string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	chat := &llm.MockChat{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return `{
				"episodes": [{
					"summary": "Sarah has a job interview she is nervous about",
					"topics": ["work"],
					"salience": 0.7,
					"confidence": 0.8,
					"exemplars": [{"quote": "the interview is tomorrow", "significance": "upcoming event"}],
					"patterns": ["career anxiety"]
				}],
				"self_model_updates": {"current_focus": "supporting Sarah before the interview"}
			}`, nil
		},
	}
	e, db, self := testEngine(t, g, chat, embed)
	seedRaws(t, db, embed,
		"User: the interview is tomorrow\n\nAssistant: good luck",
		"User: I am nervous\n\nAssistant: that's understandable",
		"User: thanks for listening\n\nAssistant: any time")

	require.NoError(t, e.Run(context.Background()))

	require.Equal(t, 1, g.NodeCount())
	node := g.GetAllNodes()[0]
	assert.Equal(t, "Sarah has a job interview she is nervous about", node.Summary)
	assert.InDelta(t, 0.7, node.Salience, 1e-6)
	assert.ElementsMatch(t, []string{"work", "career anxiety"}, node.Topics)
	require.Len(t, node.Exemplars, 1)
	assert.Equal(t, "the interview is tomorrow", node.Exemplars[0].Quote)
	assert.Equal(t, "upcoming event", node.Exemplars[0].Context)

	// all raws marked processed
	unprocessed, err := experience.LoadUnprocessed(db)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	// self-model delta folded in
	model, err := self.Current()
	require.NoError(t, err)
	assert.Equal(t, "supporting Sarah before the interview", model.CurrentFocus)

	// graph checkpointed to the store
	var count int64
	db.Model(&database.Episode{}).Count(&count)
	assert.EqualValues(t, 1, count)

	assert.False(t, e.LastRun().IsZero())
}

func TestRunMergesNearDuplicate(t *testing.T) {
	g := graph.New()
	now := time.Now()
	g.AddNode(&graph.Node{
		ID:             "existing",
		Summary:        "Sarah is preparing for a job interview",
		Embedding:      []float32{1, 0, 0},
		Salience:       0.5,
		CreatedAt:      now.Add(-time.Hour),
		LastAccessedAt: now.Add(-time.Hour),
	})
	g.AddNode(&graph.Node{
		ID:             "other",
		Summary:        "the garden project",
		Embedding:      []float32{0, 1, 0},
		Salience:       0.4,
		CreatedAt:      now.Add(-time.Hour),
		LastAccessedAt: now.Add(-time.Hour),
	})
	g.AddLink("existing", graph.Link{TargetID: "other", Strength: 0.5, Kind: database.LinkKindThematic})

	embed := &embeddings.MockClient{
		EmbedFunc: func(text string) ([]float32, error) {
			return []float32{0.995, 0.005, 0}, nil
		},
	}
	chat := &llm.MockChat{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return `{"episodes": [{"summary": "The interview happened and went well", "salience": 0.8}]}`, nil
		},
	}
	e, db, _ := testEngine(t, g, chat, embed)
	seedRaws(t, db, embed, "User: it went well!\n\nAssistant: wonderful")

	require.NoError(t, e.Run(context.Background()))

	// merged, not inserted
	assert.Equal(t, 2, g.NodeCount())
	node := g.GetNode("existing")
	require.NotNil(t, node)
	assert.Equal(t, "Sarah is preparing for a job interview The interview happened and went well", node.Summary)
	assert.EqualValues(t, 1, node.AccessCount)

	// decay runs in the same pass, so the boosted link lands just under 0.6
	links := g.GetOutLinks("existing")
	require.Len(t, links, 1)
	assert.Greater(t, links[0].Strength, 0.5)
	assert.LessOrEqual(t, links[0].Strength, 0.6)
}

func TestRunModelFailureStillDecaysAndCheckpoints(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{
		ID:             "n1",
		Summary:        "an old memory",
		Embedding:      []float32{1, 0, 0},
		Salience:       0.8,
		CreatedAt:      time.Now().Add(-14 * 24 * time.Hour),
		LastAccessedAt: time.Now().Add(-14 * 24 * time.Hour),
	})

	embed := &embeddings.MockClient{}
	chat := &llm.MockChat{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	e, db, _ := testEngine(t, g, chat, embed)
	seedRaws(t, db, embed, "User: hello\n\nAssistant: hi")

	require.NoError(t, e.Run(context.Background()))

	// raws stay unprocessed for the next pass
	unprocessed, err := experience.LoadUnprocessed(db)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1)

	// two half-lives of decay applied
	node := g.GetNode("n1")
	require.NotNil(t, node)
	assert.InDelta(t, 0.2, node.Salience, 0.01)

	// checkpoint still written
	var count int64
	db.Model(&database.Episode{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRunSkipsMalformedCandidates(t *testing.T) {
	g := graph.New()
	embed := &embeddings.MockClient{}
	chat := &llm.MockChat{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return `{"episodes": [
				{"summary": "", "salience": 0.5},
				{"summary": "a real episode", "salience": 0.5}
			]}`, nil
		},
	}
	e, db, _ := testEngine(t, g, chat, embed)
	seedRaws(t, db, embed, "User: hi\n\nAssistant: hello")

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, g.NodeCount())
}

func TestRunEmptyBufferOnlyDecaysAndCheckpoints(t *testing.T) {
	g := graph.New()
	chat := &llm.MockChat{}
	e, _, _ := testEngine(t, g, chat, &embeddings.MockClient{})

	require.NoError(t, e.Run(context.Background()))
	assert.Zero(t, chat.CompleteCalls)
	assert.False(t, e.LastRun().IsZero())
}

func TestInsertLinksToNearestNeighbours(t *testing.T) {
	g := graph.New()
	now := time.Now()
	for i, vec := range [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}} {
		g.AddNode(&graph.Node{
			ID:             string(rune('a' + i)),
			Summary:        "seed",
			Embedding:      vec,
			Salience:       0.5,
			CreatedAt:      now,
			LastAccessedAt: now,
		})
	}

	embed := &embeddings.MockClient{
		EmbedFunc: func(text string) ([]float32, error) {
			return []float32{0, 0, 1}, nil
		},
	}
	chat := &llm.MockChat{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return `{"episodes": [{"summary": "something orthogonal", "salience": 0.5}]}`, nil
		},
	}
	e, db, _ := testEngine(t, g, chat, embed)
	seedRaws(t, db, embed, "User: x\n\nAssistant: y")

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, 4, g.NodeCount())

	var inserted *graph.Node
	for _, n := range g.GetAllNodes() {
		if n.Summary == "something orthogonal" {
			inserted = n
		}
	}
	require.NotNil(t, inserted)

	links := g.GetOutLinks(inserted.ID)
	assert.Len(t, links, 3)
	for _, l := range links {
		assert.Equal(t, database.LinkKindThematic, l.Kind)
	}
}
