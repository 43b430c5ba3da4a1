// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conversation orchestrates one foreground turn: retrieve context,
// assemble the preamble, stream the model reply, encode the exchange and
// track the partner's name.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/reveries-sh/reveries/internal/assembler"
	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/gaps"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

// MonologueControl is what the handler needs from the monologue loop:
// pause while the partner is talking, resume with a summary afterwards,
// and read the recent buffer for the preamble echo.
type MonologueControl interface {
	Pause()
	ResumeAfterConversation(summary string)
	RecentBuffer() string
}

// Options carries the handler's retrieval and history tuning
type Options struct {
	RetrieveLimit       int
	MaxHops             int
	DecayPerHop         float64
	ActivationThreshold float64
	MaxHistoryTurns     int
}

// Handler serialises turns on one live session
type Handler struct {
	graph     *graph.Graph
	chat      llm.Chat
	embed     embeddings.Client
	self      *selfmodel.Manager
	encoder   *experience.Encoder
	gaps      *gaps.Tracker
	monologue MonologueControl
	log       *slog.Logger
	opts      Options

	mu             sync.Mutex
	conversationID string
	history        []llm.Message
	turnCount      int
}

// NewHandler wires a conversation handler
func NewHandler(g *graph.Graph, chat llm.Chat, embed embeddings.Client, self *selfmodel.Manager, encoder *experience.Encoder, tracker *gaps.Tracker, monologue MonologueControl, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		graph:     g,
		chat:      chat,
		embed:     embed,
		self:      self,
		encoder:   encoder,
		gaps:      tracker,
		monologue: monologue,
		log:       log,
		opts:      opts,
	}
}

// Handle runs one turn: emit is called once per streamed chunk, in model
// order. Turns are FIFO; a second call blocks until the first finishes.
func (h *Handler) Handle(ctx context.Context, message, conversationID string, emit func(string) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	newSession := conversationID != h.conversationID
	var gapDuration time.Duration
	if newSession {
		h.conversationID = conversationID
		h.history = nil
		h.turnCount = 0

		d, err := h.gaps.CloseLatest()
		if err != nil {
			h.log.Warn("failed to close gap", "error", err)
		} else {
			gapDuration = d
		}
	}

	if h.monologue != nil {
		h.monologue.Pause()
	}

	model, err := h.self.Current()
	if err != nil {
		return fmt.Errorf("failed to load self-model: %w", err)
	}

	if model.Relationship.Partner == "" {
		if name, ok := DetectPartnerName(message); ok {
			set, err := h.self.SetPartnerName(name)
			if err != nil {
				h.log.Warn("failed to persist partner name", "error", err)
			} else if set {
				h.log.Info("partner name detected", "name", name)
				model.Relationship.Partner = name
			}
		}
	}

	memories := h.retrieve(message)

	echo := ""
	if h.monologue != nil {
		echo = h.monologue.RecentBuffer()
		if assembler.IsMetaReflection(echo) {
			echo = ""
		}
	}

	preamble := assembler.Assemble(assembler.Input{
		Self:          model,
		Memories:      memories,
		GapDuration:   gapDuration,
		MonologueEcho: echo,
		Now:           time.Now(),
	})

	messages := append(append([]llm.Message(nil), h.history...), llm.Message{
		Role:    "user",
		Content: message,
	})

	var reply strings.Builder
	err = h.chat.Stream(ctx, preamble, messages, func(token string) error {
		reply.WriteString(token)
		return emit(token)
	})
	if err != nil {
		return fmt.Errorf("conversation stream failed: %w", err)
	}

	h.history = append(h.history,
		llm.Message{Role: "user", Content: message},
		llm.Message{Role: "assistant", Content: reply.String()},
	)
	if max := h.opts.MaxHistoryTurns * 2; max > 0 && len(h.history) > max {
		h.history = h.history[len(h.history)-max:]
	}
	h.turnCount++

	h.encodeExchange(message, reply.String(), conversationID)

	// The silence that ends this exchange starts now; the next new session
	// closes it and frames its duration in the preamble.
	if _, err := h.gaps.OpenOrRestart(conversationID); err != nil {
		h.log.Warn("failed to open gap", "error", err)
	}

	if h.monologue != nil {
		h.monologue.ResumeAfterConversation(exchangeSummary(model.Relationship.Partner, message))
	}

	return nil
}

// ConversationID returns the id of the live session, empty if none
func (h *Handler) ConversationID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conversationID
}

// retrieve embeds the message and pulls associatively activated memories.
// An empty graph or a failed embedding means the turn proceeds memoryless.
func (h *Handler) retrieve(message string) []*graph.Node {
	if h.graph.NodeCount() == 0 {
		return nil
	}

	vec, err := h.embed.Embed(message)
	if err != nil {
		h.log.Warn("failed to embed message, proceeding without memories", "error", err)
		return nil
	}

	retrieved := h.graph.Retrieve(vec, h.opts.RetrieveLimit, h.opts.MaxHops,
		h.opts.DecayPerHop, h.opts.ActivationThreshold)
	h.log.Debug("retrieved memories", "count", len(retrieved), "graph_nodes", h.graph.NodeCount())

	nodes := make([]*graph.Node, len(retrieved))
	for i, r := range retrieved {
		nodes[i] = r.Node
	}
	return nodes
}

func (h *Handler) encodeExchange(message, reply, conversationID string) {
	text := fmt.Sprintf("User: %s\n\nAssistant: %s", message, reply)
	meta := &experience.Metadata{
		ConversationID: conversationID,
		TurnCount:      h.turnCount,
	}
	if _, err := h.encoder.Encode(text, database.ExperienceKindConversation, meta); err != nil {
		h.log.Error("failed to encode exchange", "error", err)
	}
}

// exchangeSummary gives the monologue something concrete to pick up from
func exchangeSummary(partner, message string) string {
	who := "your partner"
	if partner != "" {
		who = partner
	}
	const limit = 200
	if len(message) > limit {
		message = message[:limit]
	}
	return fmt.Sprintf("Just talked with %s about: %s", who, message)
}
