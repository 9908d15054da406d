// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tessera-app/tessera/internal/platform/constants"
)

// Enqueuer is the single write-side gateway to the job queues.
//
// All enqueue methods are idempotent with respect to their task IDs: a
// duplicate enqueue while the original task is still pending or retained is
// reported as not-scheduled, never as an error.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client *asynq.Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// taskRetention keeps finished task IDs around so late duplicate triggers
// still collapse instead of re-running.
const taskRetention = 30 * time.Minute

// EnqueuePoll schedules one poll of a source subscription. Recovery polls go
// to the low-priority queue so live-release polling is never starved.
func (e *Enqueuer) EnqueuePoll(ctx context.Context, payload PollPayload, delay time.Duration) (bool, error) {
	queue := constants.QueuePoll
	if payload.IsRecovery {
		queue = constants.QueuePollLow
	}

	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.TaskID(PollTaskID(payload.SeriesSourceID, payload.IsRecovery)),
		asynq.MaxRetry(constants.MaxRetryPoll),
		asynq.Retention(taskRetention),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	return e.enqueue(ctx, TypePoll, payload, opts...)
}

// EnqueueCanonicalize schedules identity resolution for a scraped series.
func (e *Enqueuer) EnqueueCanonicalize(ctx context.Context, payload CanonicalizePayload) (bool, error) {
	return e.enqueue(ctx, TypeCanonicalize, payload,
		asynq.Queue(constants.QueueCanonicalize),
		asynq.MaxRetry(constants.MaxRetryIngest),
	)
}

// EnqueueIngest schedules normalization of one scraped chapter.
func (e *Enqueuer) EnqueueIngest(ctx context.Context, payload IngestPayload) (bool, error) {
	return e.enqueue(ctx, TypeIngest, payload,
		asynq.Queue(constants.QueueIngest),
		asynq.TaskID(IngestTaskID(payload.SeriesSourceID, payload.ChapterNumber)),
		asynq.MaxRetry(constants.MaxRetryIngest),
		asynq.Retention(taskRetention),
	)
}

// EnqueueGapRecovery schedules a gap scan for a series. Only one outstanding
// job per series exists at a time.
func (e *Enqueuer) EnqueueGapRecovery(ctx context.Context, payload GapRecoveryPayload) (bool, error) {
	return e.enqueue(ctx, TypeGapRecovery, payload,
		asynq.Queue(constants.QueueGap),
		asynq.TaskID(GapTaskID(payload.SeriesID)),
		asynq.MaxRetry(constants.MaxRetryIngest),
		asynq.Retention(taskRetention),
	)
}

// EnqueueDispatch schedules notification fan-out for one release trigger.
// The bucketed task ID collapses retry bursts within the same short window.
func (e *Enqueuer) EnqueueDispatch(ctx context.Context, payload DispatchPayload) (bool, error) {
	return e.enqueue(ctx, TypeDispatch, payload,
		asynq.Queue(constants.QueueDispatch),
		asynq.TaskID(DispatchTaskID(payload.SeriesID, payload.TriggeringSourceID, payload.ChapterNumber, time.Now())),
		asynq.MaxRetry(constants.MaxRetryDispatch),
		asynq.Retention(taskRetention),
	)
}

// EnqueueDeliver schedules one recipient batch on its lane queue.
func (e *Enqueuer) EnqueueDeliver(ctx context.Context, payload DeliverPayload) (bool, error) {
	queue := constants.QueueDeliver
	if payload.IsPremium {
		queue = constants.QueueDeliverPremium
	}

	return e.enqueue(ctx, TypeDeliver, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(constants.MaxRetryDeliver),
	)
}

// enqueue validates, marshals, and submits a task, collapsing task-ID
// conflicts into a not-scheduled result.
func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload interface{ Validate() error }, opts ...asynq.Option) (bool, error) {
	if err := payload.Validate(); err != nil {
		return false, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("jobs: marshal %s: %w", taskType, err)
	}

	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(taskType, body), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			e.logger.Debug("job_deduplicated", slog.String("type", taskType))
			return false, nil
		}
		return false, fmt.Errorf("jobs: enqueue %s: %w", taskType, err)
	}

	e.logger.Debug("job_enqueued",
		slog.String("type", taskType),
		slog.String("queue", info.Queue),
		slog.String("task_id", info.ID),
	)
	return true, nil
}
