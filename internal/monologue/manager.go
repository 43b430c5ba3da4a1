// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package monologue runs the inner voice: a long-lived loop that generates
// budgeted thinking cycles between conversations, detects its own
// quiescence, feeds the circuit breaker, and encodes each cycle as a raw
// experience.
package monologue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/breaker"
	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

// State of the monologue loop
type State string

const (
	StateActive    State = "active"
	StateQuiescent State = "quiescent"
	StatePaused    State = "paused"
)

const (
	// checkInterval is the cadence, in buffered characters, of both the
	// circuit-breaker evaluation and the quiescence check
	checkInterval = 200
	// hardCapFactor bounds a cycle at this multiple of the token budget
	// even when no sentence boundary arrives
	hardCapFactor = 1.5
	// comfortDelay is the pause before resuming after a comfort interrupt
	comfortDelay = time.Second
	// recentWindow bounds how far back a cycle looks for experiences
	recentWindow = 24 * time.Hour
	// maxRecentExperiences caps the experiences fed into one cycle
	maxRecentExperiences = 5
	// maxActivatedMemories caps retrieval per cycle
	maxActivatedMemories = 5

	coldStartLine = "No recent experiences. Thoughts settling."
)

// Options carries the loop's tuning knobs
type Options struct {
	MaxTokensPerCycle    int
	IdleInterval         time.Duration
	PartnerIdleThreshold time.Duration
	ReachOutCooldown     time.Duration
	NetworkBackoff       time.Duration
}

// Manager owns the monologue loop. Only one cycle runs at a time; readers
// get snapshot copies of the buffer and state.
type Manager struct {
	db      *gorm.DB
	graph   *graph.Graph
	chat    llm.Chat
	embed   embeddings.Client
	self    *selfmodel.Manager
	breaker *breaker.Breaker
	encoder *experience.Encoder
	log     *slog.Logger
	opts    Options

	mu                  sync.Mutex
	state               State
	paused              bool
	recentBuffer        string
	themes              []string
	pendingSummary      string
	resumeContext       string
	comfortPreamble     string
	lastPartnerActivity time.Time
	lastReachOut        time.Time
	lastTopic           string

	subsMu    sync.Mutex
	subs      map[int]func(string)
	nextSubID int
	proactive func(string)

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager wires a monologue manager. Start must be called to run it.
func NewManager(db *gorm.DB, g *graph.Graph, chat llm.Chat, embed embeddings.Client, self *selfmodel.Manager, cb *breaker.Breaker, encoder *experience.Encoder, log *slog.Logger, opts Options) *Manager {
	if opts.NetworkBackoff == 0 {
		opts.NetworkBackoff = 30 * time.Second
	}
	return &Manager{
		db:      db,
		graph:   g,
		chat:    chat,
		embed:   embed,
		self:    self,
		breaker: cb,
		encoder: encoder,
		log:     log,
		opts:    opts,
		state:   StateQuiescent,
		subs:    make(map[int]func(string)),
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start restores the checkpoint and launches the loop
func (m *Manager) Start(ctx context.Context) {
	m.restoreCheckpoint()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels the current cycle and waits for the loop to checkpoint
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// Pause stops the loop at its next token. Called when a conversation starts;
// partner activity is stamped so reach-out timing resets.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.state = StatePaused
	m.lastPartnerActivity = time.Now()
}

// ResumeAfterConversation unblocks the loop with a summary of what was just
// discussed. The summary seeds the next cycle and is consumed once.
func (m *Manager) ResumeAfterConversation(summary string) {
	m.mu.Lock()
	m.paused = false
	m.state = StateQuiescent
	m.pendingSummary = summary
	m.lastPartnerActivity = time.Now()
	m.lastTopic = summary
	m.mu.Unlock()

	m.Trigger()
}

// Trigger fires a reactivation: a cycle runs as soon as the loop is free
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// State returns the loop state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecentBuffer returns the last completed cycle's text
func (m *Manager) RecentBuffer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentBuffer
}

// Subscribe registers a token listener and returns an unsubscribe func
func (m *Manager) Subscribe(fn func(string)) func() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

// OnProactive registers the deliverer of reach-out messages
func (m *Manager) OnProactive(fn func(string)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.proactive = fn
}

func (m *Manager) emit(token string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, fn := range m.subs {
		fn(token)
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	idle := time.NewTimer(m.opts.IdleInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			m.checkpoint()
			return
		case <-m.trigger:
		case <-idle.C:
		}

		if ctx.Err() != nil {
			m.checkpoint()
			return
		}

		if !m.isPaused() {
			m.cycle(ctx)
		}
		idle.Reset(m.opts.IdleInterval)
	}
}

func (m *Manager) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// cycle runs one budgeted generation pass
func (m *Manager) cycle(ctx context.Context) {
	m.setState(StateActive)
	defer func() {
		if m.isPaused() {
			m.setState(StatePaused)
		} else {
			m.setState(StateQuiescent)
		}
	}()

	m.mu.Lock()
	summary := m.pendingSummary
	m.pendingSummary = ""
	resume := m.resumeContext
	m.resumeContext = ""
	comfort := m.comfortPreamble
	m.comfortPreamble = ""
	prevBuffer := m.recentBuffer
	themes := append([]string(nil), m.themes...)
	lastActivity := m.lastPartnerActivity
	lastReachOut := m.lastReachOut
	m.mu.Unlock()

	raws, err := experience.RecentUnprocessed(m.db, maxRecentExperiences, time.Now().Add(-recentWindow))
	if err != nil {
		m.log.Error("failed to load recent experiences", "error", err)
	}

	if len(raws) == 0 && summary == "" && prevBuffer == "" && resume == "" && comfort == "" {
		// generating from nothing produces poetic filler; don't call the model
		m.emit(coldStartLine)
		m.log.Debug("cold start, thoughts settling")
		return
	}

	seed := summary
	if seed == "" && len(raws) > 0 {
		seed = raws[0].Content
	}
	if seed == "" {
		seed = prevBuffer
	}
	memories := m.retrieve(seed)

	model, err := m.self.Current()
	if err != nil {
		m.log.Error("failed to load self-model", "error", err)
	}

	invite := !lastActivity.IsZero() &&
		time.Since(lastActivity) > m.opts.PartnerIdleThreshold &&
		(lastReachOut.IsZero() || time.Since(lastReachOut) > m.opts.ReachOutCooldown)

	var sinceLastTalk time.Duration
	if !lastActivity.IsZero() {
		sinceLastTalk = time.Since(lastActivity)
	}

	prompt := buildPrompt(promptInput{
		self:            model,
		sinceLastTalk:   sinceLastTalk,
		resumeContext:   resume,
		pendingSummary:  summary,
		comfortPreamble: comfort,
		experiences:     raws,
		memories:        memories,
		previousThemes:  themes,
		inviteReachOut:  invite,
	})

	buffer, comfortRequested, err := m.stream(ctx, prompt)

	if err != nil {
		if llm.IsNetworkError(err) {
			m.log.Warn("monologue network failure, backing off", "error", err)
			select {
			case <-time.After(m.opts.NetworkBackoff):
			case <-ctx.Done():
			}
		} else {
			m.log.Error("monologue stream failed", "error", err)
		}
	}

	m.finishCycle(ctx, buffer)

	if comfortRequested {
		m.comfort(ctx)
	}
}

// stream runs the model and applies the budget, breaker and quiescence
// checks token by token
func (m *Manager) stream(ctx context.Context, prompt string) (buffer string, comfortRequested bool, err error) {
	var buf strings.Builder
	budget := m.opts.MaxTokensPerCycle
	hardCap := int(float64(budget) * hardCapFactor)
	overBudget := false
	breakerMark := 0
	quiesceMark := 0

	err = m.chat.Stream(ctx, monologueSystem,
		[]llm.Message{{Role: "user", Content: prompt}},
		func(token string) error {
			if m.isPaused() {
				return llm.ErrStopStream
			}

			buf.WriteString(token)
			m.emit(token)
			text := buf.String()

			if len(text)-breakerMark >= checkInterval {
				breakerMark = len(text)
				verdict := m.breaker.Evaluate(text)
				switch verdict.Action {
				case breaker.ActionInterrupt:
					return llm.ErrStopStream
				case breaker.ActionInterruptAndComfort:
					comfortRequested = true
					return llm.ErrStopStream
				}
			}

			if len(text) > budget {
				overBudget = true
			}
			if overBudget && atSentenceBoundary(text) {
				return llm.ErrStopStream
			}
			if len(text) >= hardCap {
				return llm.ErrStopStream
			}

			if len(text)-quiesceMark >= checkInterval {
				quiesceMark = len(text)
				if IsQuiescent(text) {
					return llm.ErrStopStream
				}
			}
			return nil
		})

	return buf.String(), comfortRequested, err
}

// finishCycle persists the buffer, extracts themes, delivers actions and
// encodes the thought as a raw experience
func (m *Manager) finishCycle(ctx context.Context, buffer string) {
	if strings.TrimSpace(buffer) == "" {
		return
	}

	actions, stripped := ParseActions(buffer)
	for _, a := range actions {
		if a.Kind == ActionReachOut && a.Content != "" {
			m.deliverReachOut(a.Content)
		}
	}
	if stripped == "" {
		return
	}

	m.mu.Lock()
	m.recentBuffer = stripped
	m.themes = ExtractThemes(stripped)
	m.mu.Unlock()

	if ctx.Err() == nil {
		if _, err := m.encoder.Encode(stripped, database.ExperienceKindMonologue, nil); err != nil {
			m.log.Error("failed to encode monologue cycle", "error", err)
		}
	}

	m.checkpoint()
}

// comfort pauses briefly, resets the distress counter and queues an
// ambient-input preamble so the next cycle starts grounded
func (m *Manager) comfort(ctx context.Context) {
	select {
	case <-time.After(comfortDelay):
	case <-ctx.Done():
		return
	}

	m.breaker.ResetDistress()

	m.mu.Lock()
	lastTopic := m.lastTopic
	m.mu.Unlock()

	ambient := breaker.AmbientInput(time.Now(), m.graph.NodeCount(), m.graph.LinkCount(), lastTopic)

	m.mu.Lock()
	m.comfortPreamble = ambient
	m.mu.Unlock()

	m.Trigger()
}

func (m *Manager) deliverReachOut(content string) {
	m.mu.Lock()
	if !m.lastReachOut.IsZero() && time.Since(m.lastReachOut) < m.opts.ReachOutCooldown {
		m.mu.Unlock()
		m.log.Debug("suppressing reach-out inside cooldown")
		return
	}
	m.lastReachOut = time.Now()
	m.mu.Unlock()

	m.subsMu.Lock()
	fn := m.proactive
	m.subsMu.Unlock()
	if fn != nil {
		m.log.Info("reaching out to partner")
		fn(content)
	}
}

func (m *Manager) retrieve(seed string) []*graph.Node {
	if seed == "" || m.graph.NodeCount() == 0 {
		return nil
	}
	vec, err := m.embed.Embed(seed)
	if err != nil {
		m.log.Warn("failed to embed monologue seed", "error", err)
		return nil
	}
	retrieved := m.graph.Retrieve(vec, maxActivatedMemories, 3, 0.5, 0.01)
	nodes := make([]*graph.Node, len(retrieved))
	for i, r := range retrieved {
		nodes[i] = r.Node
	}
	return nodes
}

// restoreCheckpoint decides whether to resume mid-thought on wake
func (m *Manager) restoreCheckpoint() {
	var row database.MonologueState
	if err := m.db.First(&row, 1).Error; err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentBuffer = row.LastBuffer
	if row.LastContext != "" {
		var themes []string
		if err := json.Unmarshal([]byte(row.LastContext), &themes); err == nil {
			m.themes = themes
		}
	}
	if !row.Quiescent && row.LastBuffer != "" {
		m.resumeContext = row.LastBuffer
	}
}

// checkpoint writes the singleton monologue state row
func (m *Manager) checkpoint() {
	m.mu.Lock()
	themesJSON, _ := json.Marshal(m.themes)
	row := database.MonologueState{
		ID:          1,
		LastBuffer:  m.recentBuffer,
		LastContext: string(themesJSON),
		Quiescent:   m.state == StateQuiescent,
		UpdatedAt:   time.Now(),
	}
	m.mu.Unlock()

	if err := m.db.Save(&row).Error; err != nil {
		m.log.Error("failed to checkpoint monologue state", "error", err)
	}
}

// atSentenceBoundary reports whether the buffer just passed sentence-ending
// punctuation followed by whitespace, or a paragraph break
func atSentenceBoundary(text string) bool {
	if strings.HasSuffix(text, "\n\n") {
		return true
	}
	if len(text) < 2 {
		return false
	}
	last := text[len(text)-1]
	prev := text[len(text)-2]
	if last != ' ' && last != '\n' && last != '\t' {
		return false
	}
	return prev == '.' || prev == '!' || prev == '?'
}
