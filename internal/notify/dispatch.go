// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// Queue is the slice of the enqueuer the dispatcher fans out through.
type Queue interface {
	EnqueueDeliver(ctx context.Context, payload jobs.DeliverPayload) (bool, error)
}

// Dispatcher collapses per-source release triggers into exactly one fan-out
// per (series, chapter) and splits the audience into delivery lanes.
type Dispatcher struct {
	redis     *redis.Client
	resolver  RecipientResolver
	queue     Queue
	namespace string
	logger    *slog.Logger
}

// NewDispatcher wires the dispatcher for one environment.
func NewDispatcher(client *redis.Client, resolver RecipientResolver, queue Queue,
	environment string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		redis:     client,
		resolver:  resolver,
		queue:     queue,
		namespace: "tessera:" + environment + ":" + constants.RedisPrefixClaim,
		logger:    logger,
	}
}

// claimKey is the "already notified" marker for one (series, chapter).
func (dispatcher *Dispatcher) claimKey(seriesID string, chapterNumber float64) string {
	return dispatcher.namespace + seriesID + ":" + jobs.FormatChapterNumber(chapterNumber)
}

// Dispatch handles one release trigger. Every source's first report of a
// chapter raises a trigger; the claim ensures only the first one fans out.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, payload jobs.DispatchPayload) error {
	key := dispatcher.claimKey(payload.SeriesID, payload.ChapterNumber)

	claimed, err := dispatcher.redis.SetNX(ctx, key, payload.TriggeringSourceID, constants.DispatchClaimTTL).Result()
	if err != nil {
		return apperr.Internal(err)
	}
	if !claimed {
		dispatcher.logger.Info("dispatch_already_claimed",
			slog.String("series_id", payload.SeriesID),
			slog.Float64("chapter_number", payload.ChapterNumber),
			slog.String("source_id", payload.TriggeringSourceID),
		)
		return nil
	}

	recipients, err := dispatcher.resolver.Resolve(ctx, payload.SeriesID)
	if err != nil {
		return dispatcher.releaseClaim(ctx, key, err)
	}
	if recipients.Total() == 0 {
		// Nobody to tell. The claim stays: later triggers for the same
		// chapter are still duplicates.
		dispatcher.logger.Info("dispatch_no_recipients", slog.String("series_id", payload.SeriesID))
		return nil
	}

	priority := priorityFor(payload.NewChapterCount)

	for _, lane := range []struct {
		userIDs   []string
		isPremium bool
	}{
		{recipients.Premium, true},
		{recipients.Standard, false},
	} {
		if len(lane.userIDs) == 0 {
			continue
		}
		_, err := dispatcher.queue.EnqueueDeliver(ctx, jobs.DeliverPayload{
			SeriesID:        payload.SeriesID,
			SourceID:        payload.TriggeringSourceID,
			ChapterNumber:   payload.ChapterNumber,
			NewChapterCount: payload.NewChapterCount,
			RecipientIDs:    lane.userIDs,
			IsPremium:       lane.isPremium,
			Priority:        priority,
			TraceID:         payload.TraceID,
		})
		if err != nil {
			// Without the delivery jobs the claim is a lie; release it so a
			// retry of this dispatch can claim again.
			return dispatcher.releaseClaim(ctx, key, err)
		}
	}

	dispatcher.logger.Info("dispatch_fanned_out",
		slog.String("series_id", payload.SeriesID),
		slog.Float64("chapter_number", payload.ChapterNumber),
		slog.Int("standard", len(recipients.Standard)),
		slog.Int("premium", len(recipients.Premium)),
		slog.Int("priority", priority),
	)
	return nil
}

func (dispatcher *Dispatcher) releaseClaim(ctx context.Context, key string, cause error) error {
	if err := dispatcher.redis.Del(ctx, key).Err(); err != nil {
		dispatcher.logger.Error("dispatch_claim_release_failed",
			slog.String("key", key), slog.Any("error", err))
	}
	return cause
}

// priorityFor ranks a release by burst size: a lone chapter is the main
// event, a binge drop is bulk news.
func priorityFor(newChapterCount int) int {
	switch {
	case newChapterCount <= 1:
		return constants.NotifyPriorityHigh
	case newChapterCount <= 3:
		return constants.NotifyPriorityNormal
	default:
		return constants.NotifyPriorityLow
	}
}
