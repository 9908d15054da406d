// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package ingest turns scraped chapter sightings into canonical catalog state.

Architecture:

  - One chapter ingest is one transaction (logical chapter, chapter source,
    feed window) guarded by a per-(series, chapter) lock, so concurrent
    sightings of the same chapter from different sources serialize cleanly.
  - A missing predecessor triggers a gap-recovery scan for the series,
    deduplicated to at most one outstanding job per series.
  - The first source to report a chapter raises the notification dispatch
    trigger; recovery backfills never do.
*/
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/internal/platform/metrics"
)

// Queue is the slice of the enqueuer the ingestor schedules follow-up work
// through.
type Queue interface {
	EnqueuePoll(ctx context.Context, payload jobs.PollPayload, delay time.Duration) (bool, error)
	EnqueueGapRecovery(ctx context.Context, payload jobs.GapRecoveryPayload) (bool, error)
	EnqueueDispatch(ctx context.Context, payload jobs.DispatchPayload) (bool, error)
}

// SourceReader is the slice of the series repository the ingestor needs.
type SourceReader interface {
	GetSourceByID(ctx context.Context, id string) (*catalog.SeriesSource, error)
	ListActiveSources(ctx context.Context, seriesID string) ([]catalog.SeriesSource, error)
}

// Service is the chapter ingestor.
type Service struct {
	series   SourceReader
	chapters catalog.ChapterRepository
	locker   *dlock.Locker
	queue    Queue
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the ingestor.
func NewService(series SourceReader, chapters catalog.ChapterRepository,
	locker *dlock.Locker, queue Queue, logger *slog.Logger) *Service {
	return &Service{
		series:   series,
		chapters: chapters,
		locker:   locker,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest applies one scraped chapter. It is idempotent: replays and
// concurrent duplicates converge on the same catalog state.
func (service *Service) Ingest(ctx context.Context, payload jobs.IngestPayload) error {
	source, err := service.series.GetSourceByID(ctx, payload.SeriesSourceID)
	if err != nil {
		return err
	}
	if source.SeriesID != payload.SeriesID {
		return apperr.Conflict("chapter payload names a different series than its source link")
	}
	if !source.IsActive {
		// The link was deactivated after this job was queued; nothing to do.
		service.logger.Info("ingest_skipped_inactive_source",
			slog.String("series_source_id", source.ID))
		return nil
	}

	lockKey := "chapter:" + payload.SeriesID + ":" + jobs.FormatChapterNumber(payload.ChapterNumber)
	lease, err := service.locker.Acquire(ctx, lockKey, constants.ChapterLockTTL)
	if err != nil {
		if errors.Is(err, dlock.ErrNotAcquired) {
			// Another worker holds this exact chapter. Its transaction will
			// land the same state; the task-ID dedup absorbs the remainder.
			metrics.ChaptersIngested.WithLabelValues("contended").Inc()
			return nil
		}
		return apperr.Internal(err)
	}
	defer func() { _ = lease.Release(ctx) }()

	if !payload.IsRecovery {
		if err := service.checkPredecessor(ctx, payload); err != nil {
			return err
		}
	}

	discoveredAt := service.now().UTC()
	if payload.IsRecovery {
		// Back-date recovered chapters to just before the next known one so
		// the release feed keeps reading in story order.
		next, err := service.chapters.NextChapterCreatedAfter(ctx, payload.SeriesID, payload.ChapterNumber)
		if err != nil {
			return err
		}
		if next != nil {
			discoveredAt = next.Add(-time.Second)
		}
	}

	outcome, err := service.chapters.ApplyIngest(ctx, catalog.IngestApply{
		SeriesID:       payload.SeriesID,
		SeriesSourceID: payload.SeriesSourceID,
		SourceName:     source.SourceName,
		Number:         payload.ChapterNumber,
		Title:          payload.ChapterTitle,
		URL:            payload.ChapterURL,
		PublishedAt:    payload.PublishedAt,
		DiscoveredAt:   discoveredAt,
	})
	if err != nil {
		return err
	}

	switch {
	case outcome.ChapterCreated:
		metrics.ChaptersIngested.WithLabelValues("created").Inc()
	case outcome.SourceCreated:
		metrics.ChaptersIngested.WithLabelValues("source_added").Inc()
	default:
		metrics.ChaptersIngested.WithLabelValues("duplicate").Inc()
	}

	// Each source's first sighting of a chapter raises the dispatch trigger;
	// the notified-claim downstream collapses them to one notification.
	// Recovery backfills are old news and stay quiet.
	if outcome.SourceCreated && !payload.IsRecovery {
		if err := service.raiseDispatch(ctx, payload); err != nil {
			// The catalog write committed; losing the trigger only delays the
			// notification until another source re-raises it.
			service.logger.Warn("dispatch_trigger_failed",
				slog.String("series_id", payload.SeriesID),
				slog.Float64("chapter_number", payload.ChapterNumber),
				slog.Any("error", err),
			)
		}
	}

	service.logger.Info("chapter_ingested",
		slog.String("series_id", payload.SeriesID),
		slog.String("series_source_id", payload.SeriesSourceID),
		slog.Float64("chapter_number", payload.ChapterNumber),
		slog.Bool("chapter_created", outcome.ChapterCreated),
		slog.Bool("source_created", outcome.SourceCreated),
		slog.Bool("is_recovery", payload.IsRecovery),
	)
	return nil
}

// checkPredecessor schedules a gap scan when the chapter immediately before
// the incoming one is unknown. Ingestion continues either way.
func (service *Service) checkPredecessor(ctx context.Context, payload jobs.IngestPayload) error {
	expected := precedingWhole(payload.ChapterNumber)
	if expected < 1 {
		return nil
	}

	exists, err := service.chapters.HasChapter(ctx, payload.SeriesID, float64(expected))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	metrics.GapsDetected.Inc()
	scheduled, err := service.queue.EnqueueGapRecovery(ctx, jobs.GapRecoveryPayload{
		SeriesID: payload.SeriesID,
		TraceID:  payload.TraceID,
	})
	if err != nil {
		return err
	}
	if scheduled {
		metrics.GapJobsScheduled.Inc()
		service.logger.Info("gap_scan_scheduled",
			slog.String("series_id", payload.SeriesID),
			slog.Int("missing_chapter", expected),
		)
	}
	return nil
}

func (service *Service) raiseDispatch(ctx context.Context, payload jobs.IngestPayload) error {
	// Rank the release by burst size: a lone new chapter is a hotter signal
	// than the tail of a binge drop.
	burst, err := service.chapters.CountChaptersCreatedSince(ctx, payload.SeriesID,
		service.now().UTC().Add(-constants.DispatchBucket))
	if err != nil {
		return err
	}
	if burst < 1 {
		burst = 1
	}

	_, err = service.queue.EnqueueDispatch(ctx, jobs.DispatchPayload{
		SeriesID:           payload.SeriesID,
		TriggeringSourceID: payload.SeriesSourceID,
		ChapterNumber:      payload.ChapterNumber,
		NewChapterCount:    burst,
		TraceID:            payload.TraceID,
	})
	return err
}

// RecoverGaps scans a series for missing whole chapters and schedules
// low-priority recovery polls across its active sources.
func (service *Service) RecoverGaps(ctx context.Context, payload jobs.GapRecoveryPayload) error {
	numbers, err := service.chapters.ListChapterNumbers(ctx, payload.SeriesID)
	if err != nil {
		return err
	}

	gaps := FindGaps(numbers)
	if len(gaps) == 0 {
		service.logger.Info("gap_scan_clean", slog.String("series_id", payload.SeriesID))
		return nil
	}

	sources, err := service.series.ListActiveSources(ctx, payload.SeriesID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		service.logger.Warn("gap_scan_no_sources",
			slog.String("series_id", payload.SeriesID),
			slog.Int("gaps", len(gaps)),
		)
		return nil
	}

	// Any source may carry the missing chapters, so each active one gets a
	// recovery poll. They land on the low-priority queue and their ingests
	// skip the predecessor check, so recovery cannot cascade.
	scheduled := 0
	for _, source := range sources {
		ok, err := service.queue.EnqueuePoll(ctx, jobs.PollPayload{
			SeriesSourceID: source.ID,
			IsRecovery:     true,
			TraceID:        payload.TraceID,
		}, 0)
		if err != nil {
			return err
		}
		if ok {
			scheduled++
		}
	}

	service.logger.Info("gap_recovery_scheduled",
		slog.String("series_id", payload.SeriesID),
		slog.Int("gaps", len(gaps)),
		slog.Int("polls", scheduled),
	)
	return nil
}
