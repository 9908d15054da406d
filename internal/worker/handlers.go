// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package worker is the queue-consumer boundary: it decodes task payloads,
dispatches them to the pipeline services, and translates the error taxonomy
into the queue's retry semantics.

Architecture:

  - Two consumer pools run side by side: the standard pool serves every
    pipeline queue, the premium pool serves only the premium delivery lane
    with its own, larger concurrency.
  - Fatal errors (validation, conflicts, blocks) are marked SkipRetry at
    this boundary; everything else follows the queue's backoff.
*/
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tessera-app/tessera/internal/canonical"
	"github.com/tessera-app/tessera/internal/crawler"
	"github.com/tessera-app/tessera/internal/ingest"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/notify"
	"github.com/tessera-app/tessera/internal/platform/apperr"
)

// Handlers groups the pipeline services behind their task types.
type Handlers struct {
	Poller     *crawler.Poller
	Canonical  *canonical.Service
	Ingestor   *ingest.Service
	Dispatcher *notify.Dispatcher
	Deliverer  *notify.Deliverer
	Logger     *slog.Logger
}

// NewMux registers every pipeline task type on one serve mux.
func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypePoll, h.handlePoll)
	mux.HandleFunc(jobs.TypeCanonicalize, h.handleCanonicalize)
	mux.HandleFunc(jobs.TypeIngest, h.handleIngest)
	mux.HandleFunc(jobs.TypeGapRecovery, h.handleGapRecovery)
	mux.HandleFunc(jobs.TypeDispatch, h.handleDispatch)
	mux.HandleFunc(jobs.TypeDeliver, h.handleDeliver)
	return mux
}

// NewPremiumMux registers only delivery; the premium pool consumes nothing
// else.
func NewPremiumMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeDeliver, h.handleDeliver)
	return mux
}

func (h Handlers) handlePoll(ctx context.Context, task *asynq.Task) error {
	var payload jobs.PollPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	return h.translate(ctx, task, h.Poller.Poll(ctx, payload))
}

func (h Handlers) handleCanonicalize(ctx context.Context, task *asynq.Task) error {
	var payload jobs.CanonicalizePayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	_, err := h.Canonical.Resolve(ctx, canonical.Discovery{
		Title:         payload.Title,
		SourceName:    payload.SourceName,
		SourceID:      payload.SourceID,
		SourceURL:     payload.SourceURL,
		ExternalID:    payload.ExternalID,
		AltTitles:     payload.AltTitles,
		Description:   payload.Description,
		CoverURL:      payload.CoverURL,
		Type:          payload.Type,
		Status:        payload.Status,
		Genres:        payload.Genres,
		Tags:          payload.Tags,
		ContentRating: payload.ContentRating,
		Confidence:    payload.Confidence,
	})
	return h.translate(ctx, task, err)
}

func (h Handlers) handleIngest(ctx context.Context, task *asynq.Task) error {
	var payload jobs.IngestPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	return h.translate(ctx, task, h.Ingestor.Ingest(ctx, payload))
}

func (h Handlers) handleGapRecovery(ctx context.Context, task *asynq.Task) error {
	var payload jobs.GapRecoveryPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	return h.translate(ctx, task, h.Ingestor.RecoverGaps(ctx, payload))
}

func (h Handlers) handleDispatch(ctx context.Context, task *asynq.Task) error {
	var payload jobs.DispatchPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	return h.translate(ctx, task, h.Dispatcher.Dispatch(ctx, payload))
}

func (h Handlers) handleDeliver(ctx context.Context, task *asynq.Task) error {
	var payload jobs.DeliverPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	return h.translate(ctx, task, h.Deliverer.Deliver(ctx, payload))
}

// decode unmarshals and schema-validates a task payload. A payload that does
// not parse or validate will never do so on a retry; it is dropped.
func decode(task *asynq.Task, target interface{ Validate() error }) error {
	if err := json.Unmarshal(task.Payload(), target); err != nil {
		return fmt.Errorf("malformed %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// translate maps the error taxonomy onto queue retry semantics: fatal
// errors are logged and marked SkipRetry, transient ones pass through to
// the queue's backoff.
func (h Handlers) translate(ctx context.Context, task *asynq.Task, err error) error {
	if err == nil {
		return nil
	}

	if !apperr.IsRetryable(err) {
		h.Logger.Warn("task_dropped",
			slog.String("type", task.Type()),
			slog.Any("error", err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
