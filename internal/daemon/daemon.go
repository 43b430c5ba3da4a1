// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package daemon wires every component together and owns the wake/sleep
// lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/reveries-sh/reveries/internal/breaker"
	"github.com/reveries-sh/reveries/internal/config"
	"github.com/reveries-sh/reveries/internal/consolidation"
	"github.com/reveries-sh/reveries/internal/conversation"
	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/gaps"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/hydrator"
	"github.com/reveries-sh/reveries/internal/ipc"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/locking"
	"github.com/reveries-sh/reveries/internal/monologue"
	"github.com/reveries-sh/reveries/internal/selfmodel"
	"github.com/reveries-sh/reveries/pkg/scheduler"

	"gorm.io/gorm"
)

// partnerIdleThreshold is how long the partner must be quiet before the
// monologue may consider reaching out
const partnerIdleThreshold = 5 * time.Minute

// Daemon is the running service
type Daemon struct {
	cfg *config.Config
	log *slog.Logger

	db        *gorm.DB
	graph     *graph.Graph
	self      *selfmodel.Manager
	breaker   *breaker.Breaker
	gaps      *gaps.Tracker
	engine    *consolidation.Engine
	monologue *monologue.Manager
	handler   *conversation.Handler
	server    *ipc.Server
	sched     *scheduler.Scheduler
	pidLock   *locking.PIDLock

	shutdownCh chan struct{}
}

// New creates an unstarted daemon
func New(cfg *config.Config, log *slog.Logger) *Daemon {
	return &Daemon{
		cfg:        cfg,
		log:        log,
		shutdownCh: make(chan struct{}),
	}
}

// Run wakes the daemon, serves until ctx is cancelled or a shutdown request
// arrives, then sleeps. It returns once the final checkpoint is on disk.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.wake(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-d.shutdownCh:
		cancel()
	}

	d.sleep()
	return nil
}

// wake builds every component and starts the loops, per the fixed order:
// credentials, store, graph, self-model, safety, engines, schedule, socket.
func (d *Daemon) wake(ctx context.Context) error {
	if err := d.cfg.ValidateCredentials(); err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	d.pidLock = locking.NewPIDLock(d.cfg.PIDPath)
	if err := d.pidLock.Acquire(); err != nil {
		return err
	}

	db, err := database.Connect(&database.Config{
		Type:        d.cfg.Database.Type,
		SQLitePath:  d.cfg.Database.SQLitePath,
		PostgresDSN: d.cfg.Database.PostgresDSN,
		LogLevel:    gormlogger.Silent,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.db = db

	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.CreateIndexes(db); err != nil {
		return err
	}

	total, unprocessed, err := experience.Counts(db)
	if err != nil {
		return err
	}
	d.log.Info("store opened", "experiences", total, "unprocessed", unprocessed)

	g, err := hydrator.Hydrate(db, d.log)
	if err != nil {
		return fmt.Errorf("failed to hydrate graph: %w", err)
	}
	d.graph = g
	d.log.Info("graph hydrated", "nodes", g.NodeCount(), "links", g.LinkCount())

	self, err := selfmodel.NewManager(db)
	if err != nil {
		return err
	}
	d.self = self

	chat := llm.NewClient(d.cfg.Chat.BaseURL, os.Getenv(d.cfg.Chat.APIKeyEnv), d.cfg.Chat.Model)
	embed := d.embeddingClient()
	encoder := experience.NewEncoder(db, embed)

	d.breaker = breaker.New(db, d.log, d.cfg.Breaker.DistressThreshold, d.cfg.Breaker.MaxConsecutiveDistress)
	d.gaps = gaps.NewTracker(db)

	d.engine = consolidation.New(db, g, chat, embed, self, d.log, consolidation.Options{
		MergeThreshold:      d.cfg.Memory.MergeThreshold,
		HalfLifeDays:        d.cfg.Memory.HalfLifeDays,
		MinimumSalience:     d.cfg.Memory.MinimumSalience,
		MinimumLinkStrength: d.cfg.Memory.MinimumLinkStrength,
	})

	d.monologue = monologue.NewManager(db, g, chat, embed, self, d.breaker, encoder, d.log, monologue.Options{
		MaxTokensPerCycle:    d.cfg.Monologue.MaxTokensPerCycle,
		IdleInterval:         time.Duration(d.cfg.Monologue.IdleIntervalMinutes) * time.Minute,
		PartnerIdleThreshold: partnerIdleThreshold,
		ReachOutCooldown:     time.Duration(d.cfg.Monologue.ReachOutCooldownMinutes) * time.Minute,
	})

	d.handler = conversation.NewHandler(g, chat, embed, self, encoder, d.gaps, d.monologue, d.log, conversation.Options{
		RetrieveLimit:       d.cfg.Retrieval.Limit,
		MaxHops:             d.cfg.Retrieval.MaxHops,
		DecayPerHop:         d.cfg.Retrieval.DecayPerHop,
		ActivationThreshold: d.cfg.Retrieval.ActivationThreshold,
		MaxHistoryTurns:     d.cfg.Conversation.MaxHistoryTurns,
	})

	d.sched = scheduler.NewScheduler(
		time.Duration(d.cfg.Consolidation.IntervalMinutes)*time.Minute,
		d.log,
		func(ctx context.Context) {
			if err := d.engine.Run(ctx); err != nil {
				d.log.Error("scheduled consolidation failed", "error", err)
			}
		})
	d.sched.Start(ctx)

	d.server = ipc.NewServer(d.cfg.SocketPath, d.handler, d.monologue, d.engine, g, db, embed, d.log, d.RequestShutdown)
	if err := d.server.Start(ctx); err != nil {
		return err
	}

	d.monologue.Start(ctx)

	d.log.Info("awake")
	return nil
}

// sleep checkpoints everything in reverse order of wake. Errors are logged,
// never fatal: sleep always runs to the end.
func (d *Daemon) sleep() {
	d.log.Info("going to sleep")

	d.sched.Stop()
	d.monologue.Stop()
	d.server.Close()

	// final consolidation so nothing raw is left behind; failure here must
	// not block shutdown
	if err := d.engine.Run(context.Background()); err != nil {
		d.log.Warn("final consolidation failed", "error", err)
	}

	if err := hydrator.Persist(d.graph, d.db); err != nil {
		d.log.Error("failed to persist graph", "error", err)
	}

	d.exportIdentity()

	if err := database.Close(d.db); err != nil {
		d.log.Warn("failed to close store", "error", err)
	}

	d.pidLock.Release()
	d.log.Info("asleep")
}

// RequestShutdown asks the daemon to sleep. Safe to call more than once.
func (d *Daemon) RequestShutdown() {
	select {
	case <-d.shutdownCh:
	default:
		close(d.shutdownCh)
	}
}

func (d *Daemon) embeddingClient() embeddings.Client {
	e := d.cfg.Embeddings
	apiKey := os.Getenv(e.APIKeyEnv)
	if e.Provider == config.EmbeddingProviderVoyage {
		return embeddings.NewVoyageClient(e.BaseURL, apiKey, e.Model, e.Dimensions)
	}
	return embeddings.NewOpenAIClient(e.BaseURL, apiKey, e.Model, e.Dimensions)
}

// exportIdentity writes the human-readable identity.md beside the store
func (d *Daemon) exportIdentity() {
	model, err := d.self.Current()
	if err != nil {
		d.log.Warn("failed to load self-model for export", "error", err)
		return
	}
	dir, err := config.Dir()
	if err != nil {
		return
	}
	path := filepath.Join(dir, "identity.md")
	if err := selfmodel.ExportIdentity(model, path); err != nil {
		d.log.Warn("failed to export identity", "error", err)
	}
}
