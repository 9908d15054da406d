// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/internal/platform/metrics"
)

// Queue is the slice of the enqueuer the poller schedules work through.
type Queue interface {
	EnqueueIngest(ctx context.Context, payload jobs.IngestPayload) (bool, error)
	EnqueueCanonicalize(ctx context.Context, payload jobs.CanonicalizePayload) (bool, error)
}

// SourceStore is the slice of the series repository the poller needs for
// poll bookkeeping.
type SourceStore interface {
	GetSourceByID(ctx context.Context, id string) (*catalog.SeriesSource, error)
	RecordPollSuccess(ctx context.Context, sourceID string, polledAt, nextCheckAt time.Time) error
	IncrementFailure(ctx context.Context, sourceID string) (int, error)
	DemoteSource(ctx context.Context, sourceID string, nextCheckAt time.Time) error
}

// Poller executes poll jobs: one fetch of one source subscription, with all
// the protective machinery around it.
type Poller struct {
	series   SourceStore
	adapters map[string]Adapter
	window   *dlock.Window
	queue    Queue
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Result]
	pacers   map[string]*rate.Limiter
}

// NewPoller wires the poller. Adapters are keyed by source name.
func NewPoller(series SourceStore, adapters []Adapter, window *dlock.Window,
	queue Queue, cfg *config.Config, logger *slog.Logger) *Poller {
	byName := make(map[string]Adapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}
	return &Poller{
		series:   series,
		adapters: byName,
		window:   window,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
		pacers:   make(map[string]*rate.Limiter),
	}
}

// Poll fetches one source subscription and fans its chapters into the ingest
// queue.
func (poller *Poller) Poll(ctx context.Context, payload jobs.PollPayload) error {
	source, err := poller.series.GetSourceByID(ctx, payload.SeriesSourceID)
	if err != nil {
		return err
	}
	if !source.IsActive {
		metrics.PollRuns.WithLabelValues("skipped").Inc()
		poller.logger.Info("poll_skipped_inactive", slog.String("series_source_id", source.ID))
		return nil
	}

	adapter, ok := poller.adapters[source.SourceName]
	if !ok {
		return apperr.Validation("no adapter registered for source " + source.SourceName)
	}

	// Politeness ceiling shared across all workers. Being over means the
	// fleet as a whole is hammering this source; back off and retry later.
	allowed, err := poller.window.Allow(ctx, "poll:"+source.SourceName,
		poller.cfg.PollPerSourcePerMinute, time.Minute)
	if err != nil {
		return apperr.Internal(err)
	}
	if !allowed {
		metrics.PollRuns.WithLabelValues("skipped").Inc()
		return apperr.Overloaded("poll budget for " + source.SourceName + " exhausted")
	}

	// In-process pacing smooths this worker's share of the budget.
	if err := poller.pacer(source.SourceName).Wait(ctx); err != nil {
		return apperr.Internal(err)
	}

	breaker := poller.breaker(source.SourceName)
	result, err := breaker.Execute(func() (*Result, error) {
		return adapter.Fetch(ctx, *source)
	})
	poller.publishBreakerState(source.SourceName, breaker.State())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// The breaker is shedding this source. The scheduler re-enqueues
			// due sources every tick, so dropping here costs nothing.
			metrics.PollRuns.WithLabelValues("skipped").Inc()
			poller.logger.Warn("poll_breaker_open", slog.String("source", source.SourceName))
			return nil
		}
		return poller.recordFailure(ctx, source, err)
	}

	return poller.recordSuccess(ctx, source, payload, result)
}

// recordFailure applies the failure bookkeeping and returns the error the
// queue should act on.
func (poller *Poller) recordFailure(ctx context.Context, source *catalog.SeriesSource, fetchErr error) error {
	now := poller.now().UTC()

	if ae := apperr.As(fetchErr); ae != nil && ae.Code == "SOURCE_BLOCKED" {
		// Anti-bot response. Retrying would dig the hole deeper; park the
		// source for the long block cooldown.
		metrics.PollRuns.WithLabelValues("blocked").Inc()
		if err := poller.series.DemoteSource(ctx, source.ID, now.Add(poller.cfg.SourceBlockCooldown)); err != nil {
			poller.logger.Error("source_demote_failed", slog.String("series_source_id", source.ID), slog.Any("error", err))
		}
		poller.logger.Warn("source_blocked",
			slog.String("source", source.SourceName),
			slog.String("series_source_id", source.ID),
			slog.Duration("cooldown", poller.cfg.SourceBlockCooldown),
		)
		return fetchErr
	}

	metrics.PollRuns.WithLabelValues("error").Inc()
	failures, err := poller.series.IncrementFailure(ctx, source.ID)
	if err != nil {
		poller.logger.Error("failure_count_update_failed", slog.String("series_source_id", source.ID), slog.Any("error", err))
		return fetchErr
	}

	if failures >= poller.cfg.SourceFailureThreshold {
		if err := poller.series.DemoteSource(ctx, source.ID, now.Add(poller.cfg.SourceCooldown)); err != nil {
			poller.logger.Error("source_demote_failed", slog.String("series_source_id", source.ID), slog.Any("error", err))
		}
		poller.logger.Warn("source_demoted_after_failures",
			slog.String("series_source_id", source.ID),
			slog.Int("failures", failures),
		)
	}
	return fetchErr
}

// recordSuccess resets poll bookkeeping and fans out the scraped feed.
func (poller *Poller) recordSuccess(ctx context.Context, source *catalog.SeriesSource,
	payload jobs.PollPayload, result *Result) error {
	metrics.PollRuns.WithLabelValues("ok").Inc()

	// Refreshed metadata rides the same poll; canonicalization folds it in.
	if result.Series != nil {
		if _, err := poller.queue.EnqueueCanonicalize(ctx, canonicalizePayload(source, result.Series, payload.TraceID)); err != nil {
			poller.logger.Warn("canonicalize_enqueue_failed",
				slog.String("series_source_id", source.ID), slog.Any("error", err))
		}
	}

	enqueued := 0
	for _, chapter := range result.Chapters {
		scheduled, err := poller.queue.EnqueueIngest(ctx, jobs.IngestPayload{
			SeriesSourceID: source.ID,
			SeriesID:       source.SeriesID,
			ChapterNumber:  chapter.Number,
			ChapterTitle:   chapter.Title,
			ChapterURL:     chapter.URL,
			PublishedAt:    chapter.PublishedAt,
			IsRecovery:     payload.IsRecovery,
			TraceID:        payload.TraceID,
		})
		if err != nil {
			return err
		}
		if scheduled {
			enqueued++
		}
	}

	now := poller.now().UTC()
	interval := poller.cfg.ColdCheckInterval
	if source.Priority == constants.PriorityHot {
		interval = poller.cfg.HotCheckInterval
	}
	if err := poller.series.RecordPollSuccess(ctx, source.ID, now, now.Add(interval)); err != nil {
		return err
	}

	poller.logger.Info("poll_completed",
		slog.String("source", source.SourceName),
		slog.String("series_source_id", source.ID),
		slog.Int("chapters_seen", len(result.Chapters)),
		slog.Int("chapters_enqueued", enqueued),
		slog.Bool("is_recovery", payload.IsRecovery),
	)
	return nil
}

func canonicalizePayload(source *catalog.SeriesSource, series *ScrapedSeries, traceID string) jobs.CanonicalizePayload {
	return jobs.CanonicalizePayload{
		Title:         series.Title,
		SourceName:    source.SourceName,
		SourceID:      source.SourceID,
		SourceURL:     source.SourceURL,
		ExternalID:    series.ExternalID,
		AltTitles:     series.AltTitles,
		Description:   series.Description,
		CoverURL:      series.CoverURL,
		Type:          series.Type,
		Status:        series.Status,
		Genres:        series.Genres,
		Tags:          series.Tags,
		ContentRating: series.ContentRating,
		TraceID:       traceID,
	}
}

// breaker returns the per-source circuit breaker, creating it on first use.
func (poller *Poller) breaker(sourceName string) *gobreaker.CircuitBreaker[*Result] {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if breaker, ok := poller.breakers[sourceName]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "source:" + sourceName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(poller.cfg.SourceFailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			poller.logger.Warn("breaker_state_changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	poller.breakers[sourceName] = breaker
	return breaker
}

// pacer returns the per-source in-process limiter, creating it on first use.
func (poller *Poller) pacer(sourceName string) *rate.Limiter {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if pacer, ok := poller.pacers[sourceName]; ok {
		return pacer
	}

	perMinute := poller.cfg.PollPerSourcePerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	pacer := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	poller.pacers[sourceName] = pacer
	return pacer
}

func (poller *Poller) publishBreakerState(sourceName string, state gobreaker.State) {
	value := 0.0
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	metrics.BreakerState.WithLabelValues(sourceName).Set(value)
}
