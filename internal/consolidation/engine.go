// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package consolidation drains unprocessed raw experiences, abstracts them
// into graph episodes through the language model, merges near-duplicates,
// forms links, folds self-model updates in, applies decay and checkpoints
// the graph.
package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/hydrator"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

const (
	// mergeLinkBoost is added to each outgoing link of a node that absorbs
	// a merged candidate
	mergeLinkBoost = 0.1
	// insertLinkStrength seeds thematic links from a freshly inserted node
	insertLinkStrength = 0.5
	// maxInsertLinks caps how many neighbours a new node links to
	maxInsertLinks = 3
)

// Options carries the tuning knobs of one engine instance
type Options struct {
	MergeThreshold      float64
	HalfLifeDays        float64
	MinimumSalience     float64
	MinimumLinkStrength float64
}

// Engine runs consolidation passes. Only one pass runs at a time.
type Engine struct {
	db    *gorm.DB
	graph *graph.Graph
	chat  llm.Chat
	embed embeddings.Client
	self  *selfmodel.Manager
	log   *slog.Logger
	opts  Options

	passMu sync.Mutex

	stateMu sync.Mutex
	lastRun time.Time
}

// New creates a consolidation engine over the store, graph and model clients
func New(db *gorm.DB, g *graph.Graph, chat llm.Chat, embed embeddings.Client, self *selfmodel.Manager, log *slog.Logger, opts Options) *Engine {
	return &Engine{
		db:    db,
		graph: g,
		chat:  chat,
		embed: embed,
		self:  self,
		log:   log,
		opts:  opts,
	}
}

// LastRun returns when the last pass completed, zero if none has
func (e *Engine) LastRun() time.Time {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastRun
}

// Run executes one consolidation pass. A model failure aborts abstraction
// but decay and the graph checkpoint still run, so the pass always leaves a
// consistent snapshot behind.
func (e *Engine) Run(ctx context.Context) error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	raws, err := experience.LoadUnprocessed(e.db)
	if err != nil {
		return err
	}

	if len(raws) > 0 {
		if err := e.consolidate(ctx, raws); err != nil {
			e.log.Warn("abstraction pass failed, decaying and checkpointing anyway", "error", err)
		}
	}

	e.graph.ApplyDecay(e.opts.HalfLifeDays, e.opts.MinimumSalience, e.opts.MinimumLinkStrength)

	if err := hydrator.Persist(e.graph, e.db); err != nil {
		return fmt.Errorf("failed to checkpoint graph: %w", err)
	}

	e.stateMu.Lock()
	e.lastRun = time.Now()
	e.stateMu.Unlock()

	return nil
}

// consolidate runs the abstraction call and folds the result into the graph
// and the self-model. The model call happens before any graph mutation so
// the graph lock is never held across it.
func (e *Engine) consolidate(ctx context.Context, raws []database.RawExperience) error {
	model, err := e.self.Current()
	if err != nil {
		return err
	}

	prompt := buildAbstractionPrompt(model.Narrative, raws)
	reply, err := e.chat.Complete(ctx, abstractionSystem, prompt)
	if err != nil {
		return fmt.Errorf("abstraction call failed: %w", err)
	}

	result := parseAbstraction(reply)
	e.log.Info("consolidating experiences",
		"experiences", len(raws), "candidates", len(result.Episodes))

	merged, inserted := 0, 0
	for _, cand := range result.Episodes {
		action, err := e.applyCandidate(cand)
		if err != nil {
			e.log.Warn("skipping malformed episode candidate", "error", err)
			continue
		}
		if action == actionMerged {
			merged++
		} else {
			inserted++
		}
	}
	if merged+inserted > 0 {
		e.log.Info("graph updated", "merged", merged, "inserted", inserted,
			"nodes", e.graph.NodeCount(), "links", e.graph.LinkCount())
	}

	if !result.SelfModelUpdates.IsEmpty() {
		if _, err := e.self.ApplyUpdates(&result.SelfModelUpdates); err != nil {
			e.log.Error("failed to apply self-model updates", "error", err)
		}
	}

	ids := make([]string, len(raws))
	for i, raw := range raws {
		ids[i] = raw.ID
	}
	if err := experience.MarkProcessed(e.db, ids); err != nil {
		return err
	}

	return nil
}

type candidateAction int

const (
	actionInserted candidateAction = iota
	actionMerged
)

// applyCandidate embeds one candidate and either merges it into the nearest
// existing episode or inserts it as a new node
func (e *Engine) applyCandidate(cand candidateEpisode) (candidateAction, error) {
	if strings.TrimSpace(cand.Summary) == "" {
		return actionInserted, fmt.Errorf("candidate has empty summary")
	}

	vec, err := e.embed.Embed(cand.Summary)
	if err != nil {
		return actionInserted, fmt.Errorf("failed to embed candidate: %w", err)
	}

	nearest := e.graph.FindNearest(vec, 1)
	if len(nearest) > 0 && nearest[0].Similarity >= e.opts.MergeThreshold {
		e.merge(nearest[0].ID, cand)
		return actionMerged, nil
	}

	e.insert(cand, vec)
	return actionInserted, nil
}

// merge folds the candidate into an existing node: summaries concatenate,
// exemplars extend, salience takes the max, the node is reinforced, and
// every existing outgoing link strengthens by a fixed boost.
func (e *Engine) merge(id string, cand candidateEpisode) {
	now := time.Now()
	e.graph.Update(id, func(n *graph.Node) {
		if n.Summary != "" {
			n.Summary += " "
		}
		n.Summary += cand.Summary

		for _, ex := range cand.Exemplars {
			n.Exemplars = append(n.Exemplars, graph.Exemplar{
				Quote:     ex.Quote,
				Context:   ex.Significance,
				Timestamp: now,
			})
		}

		if cand.Salience > n.Salience {
			n.Salience = cand.Salience
		}

		n.AccessCount++
		if now.After(n.LastAccessedAt) {
			n.LastAccessedAt = now
		}

		for i := range n.Links {
			s := n.Links[i].Strength + mergeLinkBoost
			if s > 1.0 {
				s = 1.0
			}
			n.Links[i].Strength = s
		}
	})
}

// insert adds the candidate as a new node and links it thematically to its
// nearest existing neighbours
func (e *Engine) insert(cand candidateEpisode, vec []float32) {
	now := time.Now()
	node := &graph.Node{
		ID:             ulid.Make().String(),
		Summary:        cand.Summary,
		Embedding:      vec,
		Salience:       clamp(cand.Salience, e.opts.MinimumSalience, 1.0),
		Confidence:     clamp(cand.Confidence, 0.0, 1.0),
		Topics:         mergeTopics(cand.Topics, cand.Patterns),
		Exemplars:      make([]graph.Exemplar, 0, len(cand.Exemplars)),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	for _, ex := range cand.Exemplars {
		node.Exemplars = append(node.Exemplars, graph.Exemplar{
			Quote:     ex.Quote,
			Context:   ex.Significance,
			Timestamp: now,
		})
	}

	e.graph.AddNode(node)

	// the new node is its own nearest neighbour, so over-fetch by one
	neighbors := e.graph.FindNearest(vec, maxInsertLinks+1)
	linked := 0
	for _, nb := range neighbors {
		if nb.ID == node.ID {
			continue
		}
		e.graph.AddLink(node.ID, graph.Link{
			TargetID: nb.ID,
			Strength: insertLinkStrength,
			Kind:     database.LinkKindThematic,
		})
		linked++
		if linked == maxInsertLinks {
			break
		}
	}
}

// mergeTopics folds observed patterns into the topic list as thematic tags,
// deduplicating case-insensitively
func mergeTopics(topics, patterns []string) []string {
	out := make([]string, 0, len(topics)+len(patterns))
	seen := make(map[string]struct{})
	for _, t := range append(append([]string{}, topics...), patterns...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
