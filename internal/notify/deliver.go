// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/metrics"
	"github.com/tessera-app/tessera/pkg/pointer"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// SeriesReader is the slice of the catalog the deliverer needs for
// notification content.
type SeriesReader interface {
	GetSeriesByID(ctx context.Context, id string) (*catalog.Series, error)
}

// Deliverer materializes one recipient batch into persisted notifications,
// applying dedup, throttling, and backlog degradation.
type Deliverer struct {
	store     Store
	throttler *Throttler
	backlog   BacklogMonitor
	series    SeriesReader
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewDeliverer wires the deliverer.
func NewDeliverer(store Store, throttler *Throttler, backlog BacklogMonitor,
	series SeriesReader, cfg *config.Config, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		store:     store,
		throttler: throttler,
		backlog:   backlog,
		series:    series,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Deliver processes one lane batch. Replays converge: recipients already
// holding an equal-or-better notification for the chapter are skipped.
func (deliverer *Deliverer) Deliver(ctx context.Context, payload jobs.DeliverPayload) error {
	pending, err := deliverer.backlog.PendingDeliveries(ctx)
	if err != nil {
		// Degradation must not block delivery; assume healthy.
		deliverer.logger.Warn("backlog_check_failed", slog.Any("error", err))
		pending = 0
	}
	metrics.DeliveryBacklog.Set(float64(pending))

	// Degradation ladder: delay, then lite payloads, then shed standard work
	// entirely. Premium batches are never shed.
	if pending > deliverer.cfg.BacklogHardCeiling && !payload.IsPremium {
		metrics.NotificationsSuppressed.WithLabelValues("shed").Add(float64(len(payload.RecipientIDs)))
		return apperr.Overloaded(fmt.Sprintf("delivery backlog %d over hard ceiling", pending))
	}

	lite := pending > deliverer.cfg.BacklogCriticalCeiling
	if lite {
		metrics.LiteMode.Set(1)
	} else {
		metrics.LiteMode.Set(0)
	}

	if pending > deliverer.cfg.BacklogSoftCeiling {
		select {
		case <-time.After(deliverer.cfg.BacklogSoftDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	series, err := deliverer.series.GetSeriesByID(ctx, payload.SeriesID)
	if err != nil {
		return err
	}

	existing, err := deliverer.store.ListForChapter(ctx, payload.RecipientIDs, payload.SeriesID, payload.ChapterNumber)
	if err != nil {
		return err
	}

	var (
		mu         sync.Mutex
		inserts    []Notification
		superseded []string
		suppressed = map[string]int{}
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(deliverer.cfg.DeliverChunkWorkers)

	for _, chunk := range chunkStrings(payload.RecipientIDs, deliverer.cfg.DeliverChunkSize) {
		group.Go(func() error {
			var localInserts []Notification
			var localSuperseded []string
			localSuppressed := map[string]int{}

			for _, userID := range chunk {
				if current, ok := existing[userID]; ok {
					// Priority dedup: lower ordinal is more important. Equal
					// or better stays; worse gets replaced.
					if current.Priority <= payload.Priority {
						localSuppressed[ReasonPriority]++
						continue
					}
					localSuperseded = append(localSuperseded, current.ID)
				} else {
					reason, err := deliverer.throttler.Admit(groupCtx, userID, payload.SeriesID,
						jobs.FormatChapterNumber(payload.ChapterNumber), payload.IsPremium)
					if err != nil {
						return apperr.Internal(err)
					}
					if reason != "" {
						localSuppressed[reason]++
						continue
					}
				}

				localInserts = append(localInserts, deliverer.build(userID, series, payload, lite))
			}

			mu.Lock()
			inserts = append(inserts, localInserts...)
			superseded = append(superseded, localSuperseded...)
			for reason, count := range localSuppressed {
				suppressed[reason] += count
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	// Deletes land before inserts so a replay after a partial failure never
	// leaves a user with both the old and the new row.
	if err := deliverer.store.BatchDelete(ctx, superseded); err != nil {
		return err
	}
	if err := deliverer.store.BatchInsert(ctx, inserts); err != nil {
		return err
	}

	lane := "standard"
	if payload.IsPremium {
		lane = "premium"
	}
	metrics.NotificationsCreated.WithLabelValues(lane).Add(float64(len(inserts)))
	for reason, count := range suppressed {
		metrics.NotificationsSuppressed.WithLabelValues(reason).Add(float64(count))
	}

	deliverer.logger.Info("delivery_completed",
		slog.String("series_id", payload.SeriesID),
		slog.Float64("chapter_number", payload.ChapterNumber),
		slog.String("lane", lane),
		slog.Int("recipients", len(payload.RecipientIDs)),
		slog.Int("created", len(inserts)),
		slog.Int("superseded", len(superseded)),
		slog.Bool("lite", lite),
	)
	return nil
}

// ReasonPriority labels recipients skipped because an equal-or-better
// notification already exists.
const ReasonPriority = "priority"

// build assembles one notification row. Lite mode keeps only what the
// (user, series, chapter) dedup needs.
func (deliverer *Deliverer) build(userID string, series *catalog.Series, payload jobs.DeliverPayload, lite bool) Notification {
	notification := Notification{
		ID:       uuidv7.New(),
		UserID:   userID,
		SeriesID: payload.SeriesID,
		Type:     constants.NotificationTypeNewChapter,
		Priority: payload.Priority,
		Metadata: map[string]any{
			"chapter_number": jobs.FormatChapterNumber(payload.ChapterNumber),
		},
		CreatedAt: deliverer.now().UTC(),
	}

	if lite {
		notification.Title = "New chapter available"
		notification.Body = "A series you follow has a new chapter."
		return notification
	}

	notification.Title = series.Title
	body := fmt.Sprintf("Chapter %s is now available", jobs.FormatChapterNumber(payload.ChapterNumber))
	if name := pointer.Val(payload.SourceName); name != "" {
		body += " on " + name
		notification.Metadata["source_name"] = name
	}
	if payload.NewChapterCount > 1 {
		body += fmt.Sprintf(" (%d new chapters)", payload.NewChapterCount)
		notification.Metadata["new_chapter_count"] = payload.NewChapterCount
	}
	notification.Body = body
	notification.Metadata["source_id"] = payload.SourceID
	return notification
}

// chunkStrings splits ids into chunks of at most size.
func chunkStrings(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
