// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// NewStandardServer builds the consumer pool for every pipeline queue
// except the premium delivery lane.
//
// Queue weights set strict-less priorities: live polling and ingestion
// outrank recovery and fan-out, so a gap-recovery burst can never starve
// fresh releases.
func NewStandardServer(redisOpt asynq.RedisConnOpt, cfg *config.Config, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.StandardConcurrency,
		Queues: map[string]int{
			constants.QueuePoll:         5,
			constants.QueueIngest:       5,
			constants.QueueCanonicalize: 3,
			constants.QueueDispatch:     3,
			constants.QueueDeliver:      3,
			constants.QueueGap:          1,
			constants.QueuePollLow:      1,
		},
		Logger:       newSlogBridge(logger.With(slog.String("pool", "standard"))),
		ErrorHandler: asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
	})
}

// NewPremiumServer builds the dedicated premium delivery pool. Its only
// queue and higher concurrency keep premium latency flat no matter what the
// standard pool is chewing on.
func NewPremiumServer(redisOpt asynq.RedisConnOpt, cfg *config.Config, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.PremiumConcurrency,
		Queues: map[string]int{
			constants.QueueDeliverPremium: 1,
		},
		Logger:       newSlogBridge(logger.With(slog.String("pool", "premium"))),
		ErrorHandler: asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
	})
}

func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error("task_failed",
			slog.String("type", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		)
	}
}

// slogBridge adapts slog to the queue library's logger interface.
type slogBridge struct {
	logger *slog.Logger
}

func newSlogBridge(logger *slog.Logger) *slogBridge {
	return &slogBridge{logger: logger}
}

func (b *slogBridge) Debug(args ...interface{}) { b.logger.Debug(fmt.Sprint(args...)) }
func (b *slogBridge) Info(args ...interface{})  { b.logger.Info(fmt.Sprint(args...)) }
func (b *slogBridge) Warn(args ...interface{})  { b.logger.Warn(fmt.Sprint(args...)) }
func (b *slogBridge) Error(args ...interface{}) { b.logger.Error(fmt.Sprint(args...)) }
func (b *slogBridge) Fatal(args ...interface{}) { b.logger.Error(fmt.Sprint(args...)) }
