// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package sched drives the periodic side of the pipeline: finding sources due
for a poll and keeping the hot/cold tiers honest.

Architecture:

  - Every worker runs the scheduler loop, but each tick's work happens under
    a leader lock, so exactly one instance re-prioritizes and enqueues per
    tick. There is no standing leader; whoever wins the tick does the work.
  - Heartbeats are independent of leadership: every instance beats.
*/
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// Queue is the slice of the enqueuer the scheduler feeds.
type Queue interface {
	EnqueuePoll(ctx context.Context, payload jobs.PollPayload, delay time.Duration) (bool, error)
}

// SourcePlanner is the slice of the series repository the scheduler needs.
type SourcePlanner interface {
	ListDueSources(ctx context.Context, now time.Time, limit int) ([]catalog.SeriesSource, error)
	DemoteIdleHotSources(ctx context.Context, idleBefore time.Time) (int64, error)
}

// Scheduler is the periodic poll planner.
type Scheduler struct {
	series    SourcePlanner
	locker    *dlock.Locker
	heartbeat *Heartbeat
	queue     Queue
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler wires the scheduler.
func NewScheduler(series SourcePlanner, locker *dlock.Locker, heartbeat *Heartbeat,
	queue Queue, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		series:    series,
		locker:    locker,
		heartbeat: heartbeat,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled. The first tick fires immediately so a
// fresh deployment starts polling without waiting out an interval.
func (scheduler *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(scheduler.cfg.SchedulerInterval)
	defer ticker.Stop()

	scheduler.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduler.tick(ctx)
		}
	}
}

// tick runs one scheduling pass.
func (scheduler *Scheduler) tick(ctx context.Context) {
	if err := scheduler.heartbeat.Beat(ctx); err != nil {
		scheduler.logger.Error("heartbeat_failed", slog.Any("error", err))
	}

	lease, err := scheduler.locker.Acquire(ctx, "sched:leader", constants.LeaderLockTTL)
	if err != nil {
		if errors.Is(err, dlock.ErrNotAcquired) {
			// Another instance won this tick.
			return
		}
		scheduler.logger.Error("leader_acquire_failed", slog.Any("error", err))
		return
	}
	stop := lease.KeepAlive(ctx, constants.LeaderLockTTL/3)
	defer func() {
		stop()
		_ = lease.Release(ctx)
	}()

	now := scheduler.now().UTC()

	// Hot sources that have gone quiet fall back to the cold cadence.
	demoted, err := scheduler.series.DemoteIdleHotSources(ctx, now.Add(-scheduler.cfg.HotIdleWindow))
	if err != nil {
		scheduler.logger.Error("tier_demotion_failed", slog.Any("error", err))
	} else if demoted > 0 {
		scheduler.logger.Info("idle_sources_demoted", slog.Int64("count", demoted))
	}

	due, err := scheduler.series.ListDueSources(ctx, now, scheduler.cfg.SchedulerBatch)
	if err != nil {
		scheduler.logger.Error("due_sources_query_failed", slog.Any("error", err))
		return
	}

	traceID := uuidv7.New()
	enqueued := 0
	for _, source := range due {
		scheduled, err := scheduler.queue.EnqueuePoll(ctx, jobs.PollPayload{
			SeriesSourceID: source.ID,
			TraceID:        traceID,
		}, 0)
		if err != nil {
			scheduler.logger.Error("poll_enqueue_failed",
				slog.String("series_source_id", source.ID), slog.Any("error", err))
			continue
		}
		if scheduled {
			enqueued++
		}
	}

	if len(due) > 0 {
		scheduler.logger.Info("schedule_tick_completed",
			slog.Int("due", len(due)),
			slog.Int("enqueued", enqueued),
			slog.String("trace_id", traceID),
		)
	}
}
