// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scheduler runs a background job on a fixed interval. The daemon
// uses it for periodic consolidation.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is the work run on every tick. Errors are the job's own business;
// a failing tick never stops the schedule.
type Job func(ctx context.Context)

// Scheduler handles periodic job execution
type Scheduler struct {
	interval time.Duration
	job      Job
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(interval time.Duration, log *slog.Logger, job Job) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.log.Debug("scheduled job tick")
				s.job(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for an in-flight job to finish
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.done
}
